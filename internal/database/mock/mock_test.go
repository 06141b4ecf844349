package mock

import (
	"testing"

	"github.com/kozaktomas/face-registry/internal/database/storetest"
)

func TestMockIdentityStore_Contract(t *testing.T) {
	storetest.Run(t, NewMockIdentityStore(), 4)
}
