package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/BioHazard786/callrelay/internal/signaling"
)

// FetchRooms reads the relay's diagnostic rooms endpoint.
func FetchRooms(ctx context.Context, roomsURL string) (signaling.Snapshot, error) {
	var snap signaling.Snapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, roomsURL, nil)
	if err != nil {
		return snap, NewError("fetch rooms", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, NewError("fetch rooms", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snap, WrapError("fetch rooms", ErrServer, fmt.Sprintf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, WrapError("fetch rooms", ErrUnexpectedMessage, err.Error())
	}
	return snap, nil
}
