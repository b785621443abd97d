package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ServerDescription is returned by management/v1/description.
type ServerDescription struct {
	ServerName          string `json:"ServerName"`
	Manufacturer        string `json:"Manufacturer"`
	ManufacturerVersion string `json:"ManufacturerVersion"`
	Location            string `json:"Location"`
}

// ConfiguredDevice is one entry of management/v1/configureddevices.
type ConfiguredDevice struct {
	DeviceName   string `json:"DeviceName"`
	DeviceType   string `json:"DeviceType"`
	DeviceNumber int    `json:"DeviceNumber"`
	UniqueID     string `json:"UniqueID"`
}

// Description queries the server-level description endpoint of the Alpaca
// server at address:port.
func (c *Client) Description(ctx context.Context, address string, port int) (ServerDescription, error) {
	var desc ServerDescription
	raw, err := c.management(ctx, address, port, "description")
	if err != nil {
		return desc, err
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, &CallError{Kind: KindProtocol, Action: "description", Err: err}
	}
	return desc, nil
}

// ConfiguredDevices enumerates the devices configured on the Alpaca server
// at address:port.
func (c *Client) ConfiguredDevices(ctx context.Context, address string, port int) ([]ConfiguredDevice, error) {
	raw, err := c.management(ctx, address, port, "configureddevices")
	if err != nil {
		return nil, err
	}
	var devices []ConfiguredDevice
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, &CallError{Kind: KindProtocol, Action: "configureddevices", Err: err}
	}
	return devices, nil
}

// management performs a GET against a management/v1 endpoint.
func (c *Client) management(ctx context.Context, address string, port int, endpoint string) (json.RawMessage, error) {
	reqURL := fmt.Sprintf("http://%s:%d/management/v1/%s", address, port, endpoint)

	req, cancel, err := c.newRequest(ctx, http.MethodGet, endpoint, reqURL, nil)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.do(req, endpoint)
}
