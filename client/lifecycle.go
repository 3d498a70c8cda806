package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"satukanvas/internal/session/model"
)

// LifecycleClient talks to the session REST API that creates sessions and
// resolves their owner before anyone connects.
type LifecycleClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (l *LifecycleClient) CreateSession(ctx context.Context, documentID string) (model.CreateSessionResponse, error) {
	var resp model.CreateSessionResponse
	err := l.do(ctx, http.MethodPost, "/api/sessions/create", nil, model.CreateSessionRequest{DocumentID: documentID}, &resp)
	return resp, err
}

func (l *LifecycleClient) JoinSession(ctx context.Context, sessionID string, req model.JoinSessionRequest) (model.JoinSessionResponse, error) {
	var resp model.JoinSessionResponse
	err := l.do(ctx, http.MethodPost, "/api/sessions/join", url.Values{"sessionId": {sessionID}}, req, &resp)
	return resp, err
}

func (l *LifecycleClient) LeaveSession(ctx context.Context, sessionID string) error {
	return l.do(ctx, http.MethodPost, "/api/sessions/leave", url.Values{"sessionId": {sessionID}}, nil, nil)
}

func (l *LifecycleClient) EndSession(ctx context.Context, sessionID string) error {
	return l.do(ctx, http.MethodDelete, "/api/sessions/end", url.Values{"sessionId": {sessionID}}, nil, nil)
}

func (l *LifecycleClient) Members(ctx context.Context, sessionID string) ([]model.Member, error) {
	var members []model.Member
	err := l.do(ctx, http.MethodGet, "/api/sessions/members", url.Values{"sessionId": {sessionID}}, nil, &members)
	return members, err
}

func (l *LifecycleClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := strings.TrimRight(l.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if l.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.Token)
	}

	httpClient := l.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
