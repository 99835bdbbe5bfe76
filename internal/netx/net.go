// Package netx wraps outbound HTTP used when fetching third-party content.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"syscall"
	"time"
)

// ErrTooLarge is returned when the remote body exceeds the byte limit.
var ErrTooLarge = errors.New("remote content exceeds size limit")

// ErrNonPublicAddress is returned by public-only downloads that would
// connect to a loopback, private, link-local or otherwise internal address.
var ErrNonPublicAddress = errors.New("refusing to connect to non-public address")

// carrier-grade NAT, not covered by netip.Addr.IsPrivate
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

var publicClient = &http.Client{
	Transport: &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
			Control: publicOnly,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// DownloadToFile fetches url into path, refusing bodies larger than maxBytes
// (when positive). A partially written file is removed on failure.
func DownloadToFile(ctx context.Context, url, path string, maxBytes int64, timeout time.Duration) (int64, error) {
	return download(ctx, http.DefaultClient, url, path, maxBytes, timeout)
}

// DownloadPublicToFile is DownloadToFile restricted to publicly routable
// addresses. The check runs on every dial, so redirects and DNS answers
// pointing inside the network fail with ErrNonPublicAddress.
func DownloadPublicToFile(ctx context.Context, url, path string, maxBytes int64, timeout time.Duration) (int64, error) {
	return download(ctx, publicClient, url, path, maxBytes, timeout)
}

func publicOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !IsPublicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrNonPublicAddress, ip)
	}
	return nil
}

// IsPublicAddr reports whether ip is globally routable unicast.
func IsPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

func download(ctx context.Context, client *http.Client, url, path string, maxBytes int64, timeout time.Duration) (int64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return 0, ErrTooLarge
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	var src io.Reader = resp.Body
	if maxBytes > 0 {
		src = io.LimitReader(resp.Body, maxBytes+1)
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}

	return n, nil
}
