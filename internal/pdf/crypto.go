package pdf

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PasswordCredentials contains the passwords for a PDF file.
type PasswordCredentials struct {
	UserPassword  string `json:"user_password,omitempty"  yaml:"user_password,omitempty"`
	OwnerPassword string `json:"owner_password,omitempty" yaml:"owner_password,omitempty"`
}

// Empty reports whether no password is set.
func (c *PasswordCredentials) Empty() bool {
	return c == nil || (c.UserPassword == "" && c.OwnerPassword == "")
}

// configuration creates a pdfcpu configuration carrying the credentials.
func (c *PasswordCredentials) configuration() *model.Configuration {
	config := model.NewDefaultConfiguration()
	if c != nil {
		config.UserPW = c.UserPassword
		config.OwnerPW = c.OwnerPassword
	}
	return config
}

// rendererArgs returns the poppler command line options for the credentials.
func (c *PasswordCredentials) rendererArgs() []string {
	if c == nil {
		return nil
	}
	var args []string
	if c.OwnerPassword != "" {
		args = append(args, "-opw", c.OwnerPassword)
	}
	if c.UserPassword != "" {
		args = append(args, "-upw", c.UserPassword)
	}
	return args
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	passwordKeywords := []string{
		"password",
		"encrypted",
		"decrypt",
		"authentication",
		"unauthorized",
		"invalid credentials",
	}

	for _, keyword := range passwordKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}

	return false
}
