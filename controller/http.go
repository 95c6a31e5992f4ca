package controller

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/domain"
)

// handleHTTP implements §4.4.3. conn is already the dispatch-supplied
// bufferedConn, so wrapping it in another bufio.Reader here still grows
// its buffer off the same underlying socket the first-byte peek used
// (the "growing small read-buffer" behavior the spec describes); once
// http.ReadRequest returns, any bytes it buffered past the request are
// preserved for the relay via the same pattern.
func handleHTTP(conn net.Conn, state *AgentState) {
	defer func() {
		if r := recover(); r != nil {
			state.Logger.Error("recovered in handleHTTP", zap.Any("panic", r))
			conn.Close()
		}
	}()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		state.Logger.Debug("http: failed to parse request", zap.Error(err))
		conn.Close()
		return
	}
	relayConn := &bufferedConn{Conn: conn, r: br}

	if req.Method == http.MethodConnect {
		handleHTTPConnect(relayConn, req, state)
		return
	}
	handleHTTPForward(relayConn, req, state)
}

func handleHTTPConnect(conn net.Conn, req *http.Request, state *AgentState) {
	dst, err := domain.ParseUnifiedAddress(hostWithDefaultPort(req.Host, "80"))
	if err != nil {
		state.Logger.Debug("http: invalid CONNECT host", zap.String("host", req.Host), zap.Error(err))
		conn.Close()
		return
	}

	raw, kA, proxyEnc, err := tunnelInitAgent(context.Background(), state, dst, domain.TCPTunnel{Keepalive: false})
	if err != nil {
		state.Logger.Debug("http: tunnel-init failed", zap.String("dst", dst.String()), zap.Error(err))
		conn.Close()
		return
	}
	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		raw.Close()
		conn.Close()
		return
	}

	agentRelay(conn, raw, kA, proxyEnc, nil, state)
}

func handleHTTPForward(conn net.Conn, req *http.Request, state *AgentState) {
	if v := req.Header.Get("Proxy-Connection"); v != "" {
		req.Header.Del("Proxy-Connection")
		req.Header.Set("Connection", v)
	}

	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	dst, err := domain.ParseUnifiedAddress(hostWithDefaultPort(host, "80"))
	if err != nil {
		state.Logger.Debug("http: invalid request host", zap.String("host", host), zap.Error(err))
		conn.Close()
		return
	}

	var buf bytes.Buffer
	if err := req.Write(&buf); err != nil {
		state.Logger.Debug("http: failed to re-encode request", zap.Error(err))
		conn.Close()
		return
	}

	raw, kA, proxyEnc, err := tunnelInitAgent(context.Background(), state, dst, domain.TCPTunnel{Keepalive: false})
	if err != nil {
		state.Logger.Debug("http: tunnel-init failed", zap.String("dst", dst.String()), zap.Error(err))
		conn.Close()
		return
	}

	agentRelay(conn, raw, kA, proxyEnc, buf.Bytes(), state)
}

// hostWithDefaultPort appends ":port" to host if it has no port of its
// own (§4.4.3's "defaulting port 80").
func hostWithDefaultPort(host, port string) string {
	if strings.LastIndex(host, ":") > strings.LastIndex(host, "]") {
		return host
	}
	return host + ":" + port
}
