package identity

import (
	"os"

	"github.com/google/uuid"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/file"
)

// Identity ties this device to the user and company it tracks for.
type Identity struct {
	DeviceID  string `json:"device_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	Name      string `json:"device_name,omitempty"`
}

// DeviceInfoInterface defines methods for managing device identity.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	SaveDeviceID(deviceID string) error
	GetDeviceID() string
	GetUserID() string
	GetCompanyID() string
	GetDeviceIdentity() *Identity
}

// DeviceInfo manages the device identity and its associated file operations.
type DeviceInfo struct {
	DeviceInfoFile string
	Identity       Identity
	fileOps        file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) *DeviceInfo {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		fileOps:        fileOps,
	}
}

// LoadDeviceInfo reads the identity file. A device without an id gets a
// fresh UUID which is written back so later runs report the same device.
func (d *DeviceInfo) LoadDeviceInfo() error {
	err := d.fileOps.ReadJsonFile(d.DeviceInfoFile, &d.Identity)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if d.Identity.DeviceID == "" {
		return d.SaveDeviceID(uuid.NewString())
	}
	return nil
}

// GetDeviceIdentity returns the current device Identity.
func (d *DeviceInfo) GetDeviceIdentity() *Identity {
	return &d.Identity
}

func (d *DeviceInfo) GetDeviceID() string { return d.Identity.DeviceID }

func (d *DeviceInfo) GetUserID() string { return d.Identity.UserID }

func (d *DeviceInfo) GetCompanyID() string { return d.Identity.CompanyID }

// SaveDeviceID updates the device ID in the Identity field and writes it back to the file.
func (d *DeviceInfo) SaveDeviceID(deviceID string) error {
	d.Identity.DeviceID = deviceID
	return d.fileOps.WriteJsonFile(d.DeviceInfoFile, d.Identity)
}
