package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the Afinia service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (map[string]any, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// GetParameters fetches userID's parameters.
func (c *Client) GetParameters(ctx context.Context, userID string) (map[string]any, error) {
	return c.invoke(ctx, "GetParameters", map[string]any{"userId": userID})
}

// SaveParameters merges values into userID's parameters.
func (c *Client) SaveParameters(ctx context.Context, userID string, values map[string]any) (map[string]any, error) {
	return c.invoke(ctx, "SaveParameters", map[string]any{"userId": userID, "parameters": values})
}

// Chat sends one message.
func (c *Client) Chat(ctx context.Context, userID, message string) (map[string]any, error) {
	return c.invoke(ctx, "Chat", map[string]any{"userId": userID, "message": message})
}
