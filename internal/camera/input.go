package camera

import (
	"context"
	"fmt"
)

// DeviceInput はセッションに接続するデバイス入力
type DeviceInput struct {
	device Device
}

// NewDeviceInput はデバイスを入力として開く
// デバイスが利用できない場合は ErrDeviceUnavailable を返す
func NewDeviceInput(ctx context.Context, discovery Discovery, device Device) (*DeviceInput, error) {
	if !discovery.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, device.Path)
	}
	return &DeviceInput{device: device}, nil
}

// Device は入力元のデバイスを返す
func (i *DeviceInput) Device() Device {
	return i.device
}

// Media は入力のメディア種別を返す
func (i *DeviceInput) Media() MediaType {
	return i.device.Media
}
