package meshstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/rs/zerolog/log"
)

const (
	// ProtocolID is the block exchange RPC protocol
	ProtocolID = protocol.ID("/chuck/blocks/1.0.0")

	rpcTimeout = 30 * time.Second
)

// Message types
const (
	MsgTypeGetManifest = "get_manifest"
	MsgTypeGetShard    = "get_shard"
	MsgTypePing        = "ping"
	MsgTypeResponse    = "response"
	MsgTypeError       = "error"
)

// RPCMessage represents a message in the RPC protocol
type RPCMessage struct {
	Version string `json:"version,omitempty"`
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

// GetManifestRequest asks for the manifest of a CID
type GetManifestRequest struct {
	CID string `json:"cid"`
}

// GetShardRequest asks for one shard of a CID
type GetShardRequest struct {
	CID        string `json:"cid"`
	ShardIndex int    `json:"shard_index"`
}

// RPCResponse represents a response to an RPC request
type RPCResponse struct {
	Version  string    `json:"version,omitempty"`
	Success  bool      `json:"success"`
	Data     []byte    `json:"data,omitempty"`
	Error    string    `json:"error,omitempty"`
	Manifest *Manifest `json:"manifest,omitempty"`
}

// RemoteError is a failure reported by the remote handler
type RemoteError struct {
	Peer    peer.ID
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote node %s: %s", e.Peer.ShortString(), e.Message)
}

// RPCHandler serves manifests and shards from local storage
type RPCHandler struct {
	storage *LocalStorage
}

// NewRPCHandler creates a new RPC handler
func NewRPCHandler(storage *LocalStorage) *RPCHandler {
	return &RPCHandler{storage: storage}
}

// SetupStreamHandler registers the RPC protocol handler on h
func (h *RPCHandler) SetupStreamHandler(hst host.Host) {
	hst.SetStreamHandler(ProtocolID, h.handleStream)
}

// handleStream processes one request per stream
func (h *RPCHandler) handleStream(stream network.Stream) {
	defer stream.Close()
	stream.SetDeadline(time.Now().Add(rpcTimeout))

	var msg RPCMessage
	if err := json.NewDecoder(stream).Decode(&msg); err != nil {
		h.sendError(stream, "", fmt.Sprintf("failed to decode message: %v", err))
		return
	}

	if !IsVersionSupported(msg.Version) {
		h.sendResponse(stream, msg.ID, RPCResponse{
			Error: fmt.Sprintf("unsupported protocol version: %s", msg.Version),
		})
		return
	}

	var response RPCResponse
	switch msg.Type {
	case MsgTypeGetManifest:
		response = h.handleGetManifest(msg.Payload)
	case MsgTypeGetShard:
		response = h.handleGetShard(msg.Payload)
	case MsgTypePing:
		response = RPCResponse{Success: true}
	default:
		response = RPCResponse{Error: fmt.Sprintf("unknown message type: %s", msg.Type)}
	}

	h.sendResponse(stream, msg.ID, response)
}

func (h *RPCHandler) handleGetManifest(payload []byte) RPCResponse {
	var req GetManifestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return RPCResponse{Error: fmt.Sprintf("failed to unmarshal request: %v", err)}
	}

	m, err := h.storage.GetManifest(req.CID)
	if err != nil {
		return RPCResponse{Error: err.Error()}
	}
	return RPCResponse{Success: true, Manifest: &m}
}

func (h *RPCHandler) handleGetShard(payload []byte) RPCResponse {
	var req GetShardRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return RPCResponse{Error: fmt.Sprintf("failed to unmarshal request: %v", err)}
	}

	data, err := h.storage.GetShard(req.CID, req.ShardIndex)
	if err != nil {
		return RPCResponse{Error: err.Error()}
	}
	return RPCResponse{Success: true, Data: data}
}

func (h *RPCHandler) sendResponse(stream network.Stream, requestID string, response RPCResponse) {
	response.Version = CurrentVersion

	responseData, err := json.Marshal(response)
	if err != nil {
		h.sendError(stream, requestID, fmt.Sprintf("failed to marshal response: %v", err))
		return
	}

	msg := RPCMessage{
		Version: CurrentVersion,
		Type:    MsgTypeResponse,
		ID:      requestID,
		Payload: responseData,
	}
	if err := json.NewEncoder(stream).Encode(msg); err != nil {
		log.Warn().Err(err).Str("peer", stream.Conn().RemotePeer().String()).Msg("failed to send rpc response")
	}
}

func (h *RPCHandler) sendError(stream network.Stream, requestID string, errMsg string) {
	responseData, _ := json.Marshal(RPCResponse{Version: CurrentVersion, Error: errMsg})
	json.NewEncoder(stream).Encode(RPCMessage{
		Version: CurrentVersion,
		Type:    MsgTypeError,
		ID:      requestID,
		Payload: responseData,
	})
}

// RPCClient issues block requests to remote nodes
type RPCClient struct {
	host host.Host
}

// NewRPCClient creates a new RPC client
func NewRPCClient(h host.Host) *RPCClient {
	return &RPCClient{host: h}
}

// GetManifest fetches the manifest of cid from peerID
func (c *RPCClient) GetManifest(ctx context.Context, peerID peer.ID, cid string) (Manifest, error) {
	payload, err := json.Marshal(GetManifestRequest{CID: cid})
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	response, err := c.sendRequest(ctx, peerID, RPCMessage{Type: MsgTypeGetManifest, ID: cid, Payload: payload})
	if err != nil {
		return Manifest{}, err
	}
	if !response.Success {
		return Manifest{}, &RemoteError{Peer: peerID, Message: response.Error}
	}
	if response.Manifest == nil {
		return Manifest{}, &RemoteError{Peer: peerID, Message: "response carried no manifest"}
	}
	return *response.Manifest, nil
}

// GetShard fetches one shard of cid from peerID
func (c *RPCClient) GetShard(ctx context.Context, peerID peer.ID, cid string, index int) ([]byte, error) {
	payload, err := json.Marshal(GetShardRequest{CID: cid, ShardIndex: index})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	msg := RPCMessage{Type: MsgTypeGetShard, ID: fmt.Sprintf("%s-%d", cid, index), Payload: payload}
	response, err := c.sendRequest(ctx, peerID, msg)
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, &RemoteError{Peer: peerID, Message: response.Error}
	}
	return response.Data, nil
}

// Ping checks that peerID speaks the block protocol
func (c *RPCClient) Ping(ctx context.Context, peerID peer.ID) error {
	response, err := c.sendRequest(ctx, peerID, RPCMessage{Type: MsgTypePing, ID: "ping"})
	if err != nil {
		return err
	}
	if !response.Success {
		return &RemoteError{Peer: peerID, Message: response.Error}
	}
	return nil
}

// sendRequest sends an RPC request and waits for the response
func (c *RPCClient) sendRequest(ctx context.Context, peerID peer.ID, msg RPCMessage) (*RPCResponse, error) {
	stream, err := c.host.NewStream(ctx, peerID, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	} else {
		stream.SetDeadline(time.Now().Add(rpcTimeout))
	}

	msg.Version = CurrentVersion
	if err := json.NewEncoder(stream).Encode(msg); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return nil, fmt.Errorf("failed to close request side: %w", err)
	}

	var responseMsg RPCMessage
	if err := json.NewDecoder(stream).Decode(&responseMsg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("connection closed by peer")
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var response RPCResponse
	if err := json.Unmarshal(responseMsg.Payload, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &response, nil
}
