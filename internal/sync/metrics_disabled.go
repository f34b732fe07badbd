//go:build !tftp.sync.metrics

package sync

// metrics no-ops hit and miss metrics.
type metrics struct{}

func (m *metrics) hit() {}

func (m *metrics) miss() {}

// Hits always returns 0, 0.
// To enable tracking metrics, include the build tag "tftp.sync.metrics".
func (m *metrics) Hits() (hits, total uint64) {
	return 0, 0
}
