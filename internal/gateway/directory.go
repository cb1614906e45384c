package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Node discriminators in directory listings.
const (
	nodeTypeNetwork = "NETWORK"
	nodeTypeDevice  = "DEVICE"
)

// directoryEntry is the subset of a listing entry the client inspects.
type directoryEntry struct {
	Base        string `json:"$base"`
	NodeType    string `json:"nodeType"`
	DisplayName string `json:"displayName"`
}

// DeviceEntry is one device of a site listing.
type DeviceEntry struct {
	Key         string
	DisplayName string
}

// String renders "<key> - <displayName>".
func (d DeviceEntry) String() string {
	return d.Key + " - " + d.DisplayName
}

// ListSites returns the sites known to the gateway, sorted lexicographically.
//
// A failed request returns an error; an empty result with a nil error means
// the gateway has no sites.
func (c *Client) ListSites(ctx context.Context, sess *Session) ([]string, error) {
	entries, err := c.listing(ctx, sess, "sites")
	if err != nil {
		return nil, err
	}
	keys := filterKeys(entries, func(e directoryEntry) bool { return e.NodeType == nodeTypeNetwork })
	sort.Strings(keys)
	return keys, nil
}

// ListDevices returns the device keys of a site in numeric order. Keys that
// are not integers sort as 0; equal numeric keys fall back to lexicographic
// order.
func (c *Client) ListDevices(ctx context.Context, sess *Session, site string) ([]string, error) {
	devices, err := c.DescribeDevices(ctx, sess, site)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(devices))
	for i, d := range devices {
		keys[i] = d.Key
	}
	return keys, nil
}

// DescribeDevices is ListDevices with each device's display name.
func (c *Client) DescribeDevices(ctx context.Context, sess *Session, site string) ([]DeviceEntry, error) {
	if site == "" {
		return nil, fmt.Errorf("%w: site is required", ErrInvalidReference)
	}
	entries, err := c.listing(ctx, sess, "devices", site)
	if err != nil {
		return nil, err
	}

	var devices []DeviceEntry
	for key, e := range entries {
		if e.NodeType == nodeTypeDevice {
			devices = append(devices, DeviceEntry{Key: key, DisplayName: e.DisplayName})
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		ni, nj := deviceSortKey(devices[i].Key), deviceSortKey(devices[j].Key)
		if ni != nj {
			return ni < nj
		}
		return devices[i].Key < devices[j].Key
	})
	return devices, nil
}

// ListObjects returns the object IDs ("AV,1000", ...) of a device, sorted
// lexicographically.
func (c *Client) ListObjects(ctx context.Context, sess *Session, dev DeviceAddress) ([]string, error) {
	if err := dev.Validate(); err != nil {
		return nil, err
	}
	// The trailing empty segment yields ".../site/device/", the form the
	// gateway answers with the device's object members.
	entries, err := c.listing(ctx, sess, "objects", dev.Site, dev.Device, "")
	if err != nil {
		return nil, err
	}
	keys := filterKeys(entries, func(e directoryEntry) bool { return e.Base == string(KindObject) })
	sort.Strings(keys)
	return keys, nil
}

// listing fetches one hierarchy level and decodes its object-valued
// members. Scalar members ($base, displayName of the node itself, ...) are
// skipped.
func (c *Client) listing(ctx context.Context, sess *Session, what string, segments ...string) (map[string]directoryEntry, error) {
	resp, err := c.get(ctx, sess, c.restURL(sess, segments...))
	if err != nil {
		return nil, err
	}
	if err := resp.classify().Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}

	var raw map[string]json.RawMessage
	if err := resp.decodeJSON(&raw); err != nil {
		return nil, fmt.Errorf("listing %s: %w", what, err)
	}
	entries := make(map[string]directoryEntry, len(raw))
	for key, msg := range raw {
		if !isObject(msg) {
			continue
		}
		var e directoryEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			continue
		}
		entries[key] = e
	}
	return entries, nil
}

func filterKeys(entries map[string]directoryEntry, keep func(directoryEntry) bool) []string {
	keys := make([]string, 0, len(entries))
	for key, e := range entries {
		if keep(e) {
			keys = append(keys, key)
		}
	}
	return keys
}

func deviceSortKey(key string) int64 {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
