/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format."},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "You are sending messages too fast.", Status: http.StatusTooManyRequests},

	// 2xxx: Message and Profile Business Logic Errors
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrImageTooLarge:         {Code: ErrImageTooLarge, Message: "Image is too large."},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message is empty."},
	ErrImageTypeInvalid:      {Code: ErrImageTypeInvalid, Message: "Unsupported image format."},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrDeleteForbidden:       {Code: ErrDeleteForbidden, Message: "You can only delete your own messages.", Status: http.StatusForbidden},
	ErrInvalidProfile:        {Code: ErrInvalidProfile, Message: "Invalid name or color."},

	// 3xxx: Session and Security Errors
	ErrAlreadyConnected: {Code: ErrAlreadyConnected, Message: "already connected", Status: http.StatusConflict},
	ErrSessionClosed:    {Code: ErrSessionClosed, Message: "Connection is closing."},
	ErrUnauthorized:     {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:            {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreUnavailable:   {Code: ErrStoreUnavailable, Message: "Message could not be saved. Please try again.", Status: http.StatusServiceUnavailable},
	ErrImageStorageFailed: {Code: ErrImageStorageFailed, Message: "Image upload failed. Please try again.", Status: http.StatusBadGateway},
}
