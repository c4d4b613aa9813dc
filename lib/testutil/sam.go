package testutil

import (
	"net"
	"os"
	"testing"
	"time"
)

// SAMAddressEnv overrides the SAM bridge used by I2P integration tests.
const SAMAddressEnv = "CONNPOOL_TEST_SAM"

// DefaultSAMAddress is the SAM bridge address tests try by default.
const DefaultSAMAddress = "127.0.0.1:7656"

// SAMAddress returns the bridge address I2P tests should use.
func SAMAddress() string {
	if addr := os.Getenv(SAMAddressEnv); addr != "" {
		return addr
	}
	return DefaultSAMAddress
}

// RequireSAM skips the test unless a SAM bridge answers at SAMAddress.
// Integration tests need a running I2P router with SAM enabled.
func RequireSAM(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping I2P integration test in short mode")
	}
	addr := SAMAddress()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Skipf("SAM bridge unavailable at %s: %v", addr, err)
	}
	conn.Close()
	return addr
}
