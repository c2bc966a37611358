// Package installation registers devices with a notification hub through the
// resilient HTTP client chain.
package installation

import (
	"github.com/google/uuid"
)

// Platforms accepted by the hub.
const (
	PlatformFCMV1 = "fcmv1"
	PlatformAPNS  = "apns"
	PlatformADM   = "adm"
	PlatformBaidu = "baidu"
)

// Installation is the device registration document.
type Installation struct {
	InstallationID string   `json:"installationId" validate:"required,max=128"`
	Platform       string   `json:"platform" validate:"required,oneof=fcmv1 apns adm baidu"`
	PushChannel    string   `json:"pushChannel" validate:"required"`
	Tags           []string `json:"tags,omitempty" validate:"max=60,dive,installation_tag"`
	UserID         string   `json:"userId,omitempty"`
	ExpirationTime string   `json:"expirationTime,omitempty"`
}

// NewInstallation creates an installation with a fresh ID.
func NewInstallation(platform, pushChannel string, tags ...string) *Installation {
	return &Installation{
		InstallationID: uuid.NewString(),
		Platform:       platform,
		PushChannel:    pushChannel,
		Tags:           tags,
	}
}
