package memory

import (
	"testing"

	"github.com/your-org/streamforge/internal/store/storetest"
	"github.com/your-org/streamforge/internal/video"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) video.Store {
		return New()
	})
}
