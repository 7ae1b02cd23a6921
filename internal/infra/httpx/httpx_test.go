package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:8080")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives {
		t.Fatalf("期望禁用 keep-alive，但 Base.DisableKeepAlives=false")
	}
	if !tr.DisableKeepAlives {
		t.Fatalf("期望设置 Request.Close=true 的额外保险，但 DisableKeepAlives=false")
	}
}

func TestNewClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Base.DisableKeepAlives {
		t.Fatalf("不期望禁用 keep-alive，但 Base.DisableKeepAlives=true")
	}
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	_, err := NewClient("http://[::1")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestGet_OKAndStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			_, _ = w.Write([]byte("payload"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := NewClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := Get(context.Background(), c, srv.URL+"/ok")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != "payload" {
		t.Fatalf("响应体不一致：%q", string(b))
	}

	_, err = Get(context.Background(), c, srv.URL+"/missing")
	var hs *HTTPStatusError
	if !errors.As(err, &hs) {
		t.Fatalf("期望 *HTTPStatusError，实际：%T %v", err, err)
	}
	if hs.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 404，实际 %d", hs.StatusCode)
	}
}
