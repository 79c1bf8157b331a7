package models

import (
	"net"
	"strconv"
	"time"

	"github.com/sftpdesk/sftpdesk/internal/constants"
)

// ConnectParams are the credentials needed to open an authenticated channel.
type ConnectParams struct {
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Addr returns host:port, defaulting the port to 22.
func (p ConnectParams) Addr() string {
	port := int(p.Port)
	if port == 0 {
		port = constants.DefaultSSHPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// SessionInfo is the payload of a connect request. ID is chosen by the caller
// and keys the session in the registry.
type SessionInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Params extracts the dial parameters.
func (s SessionInfo) Params() ConnectParams {
	return ConnectParams{Host: s.Host, Port: s.Port, Username: s.Username, Password: s.Password}
}

// SessionSummary describes a registered session without exposing its channel.
type SessionSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	Port        uint16    `json:"port"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connected_at"`
}
