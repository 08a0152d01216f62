package security

import "testing"

func TestValidateEndpointURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://8.8.8.8/hooks", false},
		{"valid http", "http://1.1.1.1/notify", false},
		{"bad scheme", "ftp://notify.example.com", true},
		{"no host", "https://", true},
		{"localhost", "http://localhost:8080/notify", true},
		{"loopback literal", "http://127.0.0.1/notify", true},
		{"private literal", "http://10.0.0.5/notify", true},
		{"cloud metadata", "http://169.254.169.254/latest/meta-data", true},
		{"metadata hostname", "http://metadata.google.internal/computeMetadata", true},
		{"unspecified", "http://0.0.0.0/notify", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEndpointURL(tc.url)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateEndpointURL(%q) error = %v, wantErr %v", tc.url, err, tc.wantErr)
			}
		})
	}
}
