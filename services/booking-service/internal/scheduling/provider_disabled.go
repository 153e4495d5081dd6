//go:build !protogen

package scheduling

// NewGRPCProvider is a no-op without generated protobuf code; callers fall
// back to the HTTP provider.
func NewGRPCProvider(_ string) (Provider, error) {
	return nil, nil
}
