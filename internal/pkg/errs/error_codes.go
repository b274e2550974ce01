/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Message and Profile Business Logic Errors
const (
	// ErrMessageContentTooLong indicates that the message text exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrImageTooLarge indicates that the image payload exceeded the maximum size.
	ErrImageTooLarge = 2202

	// ErrMessageEmpty indicates that the message carried neither text nor an image.
	ErrMessageEmpty = 2203

	// ErrImageTypeInvalid indicates that the image payload is not a supported image format.
	ErrImageTypeInvalid = 2204

	// ErrMessageNotFound indicates that the message does not exist or has already expired.
	ErrMessageNotFound = 2205

	// ErrDeleteForbidden indicates that a user attempted to delete another user's message.
	ErrDeleteForbidden = 2206

	// ErrInvalidProfile indicates that a display name or color update failed validation.
	ErrInvalidProfile = 2301
)

// 3xxx: Session and Security Errors
const (
	// ErrAlreadyConnected indicates that the identity already holds a live connection.
	ErrAlreadyConnected = 3005

	// ErrSessionClosed indicates that the operation raced with the connection shutting down.
	ErrSessionClosed = 3006

	// ErrUnauthorized indicates that the request carried no valid identity token.
	ErrUnauthorized = 3100
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates that the message store failed to serve the request.
	ErrStoreUnavailable = 5001

	// ErrImageStorageFailed indicates that the object storage upload failed.
	ErrImageStorageFailed = 5002
)
