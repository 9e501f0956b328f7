package parser

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

const scheme = "trojan"

// Parse parses a trojan share link into a node.
// Format: trojan://password@address[:port][?parameters][#name]
// Query parameters are accepted and ignored; the port defaults to 443.
func Parse(uri string) (*models.ServerNode, error) {
	uri = strings.TrimSpace(uri)
	if !IsTrojanURI(uri) {
		return nil, fmt.Errorf("%w: must start with trojan://", pkgerrors.ErrInvalidURI)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidURI, err)
	}

	password := u.User.Username()
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", pkgerrors.ErrInvalidURI)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: address is required", pkgerrors.ErrInvalidURI)
	}

	port := models.DefaultNodePort
	if portStr := u.Port(); portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", pkgerrors.ErrInvalidURI, portStr)
		}
	}

	node := &models.ServerNode{
		Name:     strings.TrimSpace(u.Fragment),
		Addr:     host,
		Port:     port,
		Password: password,
	}
	if node.Name == "" {
		node.Name = node.Endpoint()
	}
	return node, nil
}

// Encode builds the share link for node.
func Encode(node *models.ServerNode) (string, error) {
	if !node.IsComplete() {
		return "", &pkgerrors.NodeError{Name: node.Name, Err: pkgerrors.ErrNodeIncomplete}
	}

	u := &url.URL{
		Scheme:   scheme,
		User:     url.User(node.Password),
		Host:     net.JoinHostPort(node.Addr, strconv.Itoa(node.Port)),
		Fragment: node.Name,
	}
	return u.String(), nil
}
