package extract

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	_ "github.com/bdandy/go-socks4" // registers the socks4 scheme with x/net/proxy
	"golang.org/x/net/proxy"
)

// clientForProxy builds the HTTP client used for all extraction traffic.
// An empty or unusable proxy string falls back to a direct client.
func clientForProxy(proxyStr string) *http.Client {
	direct := &http.Client{Timeout: 15 * time.Second}

	if proxyStr == "" {
		return direct
	}

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		log.Printf("[WARN] Invalid proxy format %q, going direct: %v", proxyStr, err)
		return direct
	}

	var transport *http.Transport

	switch proxyURL.Scheme {
	case "http", "https":
		log.Printf("[INFO] Extraction using HTTP proxy: %s", proxyURL.Host)
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}

	case "socks5":
		log.Printf("[INFO] Extraction using SOCKS5 proxy: %s", proxyURL.Host)
		auth := &proxy.Auth{}
		if proxyURL.User != nil {
			auth.User = proxyURL.User.Username()
			if pass, ok := proxyURL.User.Password(); ok {
				auth.Password = pass
			}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[WARN] SOCKS5 dialer error, going direct: %v", err)
			break
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}

	case "socks4":
		log.Printf("[INFO] Extraction using SOCKS4 proxy: %s", proxyURL.Host)
		dialer, err := proxy.FromURL(proxyURL, &net.Dialer{Timeout: 10 * time.Second})
		if err != nil {
			log.Printf("[WARN] SOCKS4 dialer error, going direct: %v", err)
			break
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}

	default:
		log.Printf("[WARN] Unsupported proxy scheme %q, going direct", proxyURL.Scheme)
	}

	if transport == nil {
		return direct
	}

	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
	}
}
