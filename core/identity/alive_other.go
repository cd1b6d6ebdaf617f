//go:build !unix

package identity

// Alive is not available on this platform.
func Alive(pid int) bool {
	_ = pid
	return false
}
