package memory

import (
	"testing"

	"tempchat/internal/app/chat"
	"tempchat/internal/app/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) chat.Store {
		return New()
	})
}
