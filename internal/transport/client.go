package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/internal/wire"
)

// Client issues §6 requests against a CoordinatorServer and consumes its
// room broadcast stream, the counterpart a replica (crdbctl, or a future
// embedding application) drives the engine's suspension points through.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client talking to the coordinator at baseURL (e.g.
// "http://localhost:8980").
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

func (c *Client) do(ctx context.Context, req ops.RequestEnvelope) ([]byte, error) {
	body, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("transport: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/request", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/cbor")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errResp, decErr := wire.DecodeError(data)
		if decErr != nil {
			return nil, fmt.Errorf("transport: request failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: %s: %s", errResp.Code, errResp.Message)
	}

	return data, nil
}

// PublishRepo creates a new repository named name.
func (c *Client) PublishRepo(ctx context.Context, name string) (ops.PublishRepoResponse, error) {
	data, err := c.do(ctx, ops.RequestEnvelope{
		Kind:        ops.RequestPublishRepo,
		PublishRepo: &ops.PublishRepoRequest{Name: name},
	})
	if err != nil {
		return ops.PublishRepoResponse{}, err
	}
	return wire.DecodePublishRepoResponse(data)
}

// CloneRepo joins an existing repository by its published name.
func (c *Client) CloneRepo(ctx context.Context, name string) (ops.CloneRepoResponse, error) {
	data, err := c.do(ctx, ops.RequestEnvelope{
		Kind:      ops.RequestCloneRepo,
		CloneRepo: &ops.CloneRepoRequest{Name: name},
	})
	if err != nil {
		return ops.CloneRepoResponse{}, err
	}
	return wire.DecodeCloneRepoResponse(data)
}

// SyncRepo returns every operation the coordinator has recorded for id
// that isn't already reflected in maxOperationIds.
func (c *Client) SyncRepo(ctx context.Context, id ids.RepoId, maxOperationIds map[ids.ReplicaId]ids.OperationCount) (ops.SyncRepoResponse, error) {
	data, err := c.do(ctx, ops.RequestEnvelope{
		Kind:     ops.RequestSyncRepo,
		SyncRepo: &ops.SyncRepoRequest{RepoId: id, MaxOperationIds: maxOperationIds},
	})
	if err != nil {
		return ops.SyncRepoResponse{}, err
	}
	return wire.DecodeSyncRepoResponse(data)
}

// PublishOperations durably submits a batch of locally authored operations.
func (c *Client) PublishOperations(ctx context.Context, id ids.RepoId, operations []ops.Operation) error {
	_, err := c.do(ctx, ops.RequestEnvelope{
		Kind:              ops.RequestPublishOperations,
		PublishOperations: &ops.PublishOperationsRequest{RepoId: id, Operations: operations},
	})
	return err
}

// JoinRoom opens the broadcast stream for creds, returning a channel of
// decoded MessageEnvelopes and a close func. The returned channel is
// closed when the connection ends (context cancellation, server close, or
// a framing error).
func (c *Client) JoinRoom(ctx context.Context, creds ops.RoomCredentials) (<-chan ops.MessageEnvelope, func(), error) {
	url := fmt.Sprintf("%s/rooms/%s?token=%s", c.baseURL, creds.Name, creds.Token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: build room request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: join room: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("transport: join room: status %d", resp.StatusCode)
	}

	out := make(chan ops.MessageEnvelope, subscriberBuffer)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for {
			frame, err := readFrame(resp.Body)
			if err != nil {
				return
			}
			msg, err := wire.DecodeMessage(frame)
			if err != nil {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { resp.Body.Close() }, nil
}
