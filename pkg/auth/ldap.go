package auth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// DirectoryEntry is one user read from the directory. ExternalID is the
// stable directory identifier (entryUUID or objectGUID when present, the DN
// otherwise).
type DirectoryEntry struct {
	DN          string
	Username    string
	Email       string
	DisplayName string
	ExternalID  string
}

// DirectoryClient reads users from an LDAP/AD directory. It holds no open
// connection between calls; each Search dials, binds, pages, and closes.
type DirectoryClient struct {
	cfg     config.DirectorySyncConfig
	rootCAs func() *x509.CertPool
	logger  logger.Logger
}

// NewDirectoryClient builds a client. rootCAs may be nil; when set it is
// consulted per dial so CA bundle reloads take effect without restarts.
func NewDirectoryClient(cfg config.DirectorySyncConfig, rootCAs func() *x509.CertPool, log logger.Logger) *DirectoryClient {
	return &DirectoryClient{cfg: cfg, rootCAs: rootCAs, logger: log}
}

const searchPageSize = 500

var userAttributes = []string{"uid", "sAMAccountName", "mail", "cn", "displayName", "entryUUID", "objectGUID"}

// Search returns every entry under BaseDN matching UserFilter.
func (c *DirectoryClient) Search() ([]*DirectoryEntry, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if c.cfg.BindDN != "" {
		if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("directory bind as %s: %w", c.cfg.BindDN, err)
		}
	}

	filter := c.cfg.UserFilter
	if filter == "" {
		filter = "(|(objectClass=inetOrgPerson)(objectClass=user))"
	}

	req := ldap.NewSearchRequest(
		c.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		userAttributes,
		nil,
	)

	res, err := conn.SearchWithPaging(req, searchPageSize)
	if err != nil {
		return nil, fmt.Errorf("directory search under %s: %w", c.cfg.BaseDN, err)
	}

	entries := make([]*DirectoryEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		parsed := parseEntry(e)
		if parsed == nil {
			c.logger.Debug("Skipping directory entry without username", "dn", e.DN)
			continue
		}
		entries = append(entries, parsed)
	}
	return entries, nil
}

// HealthCheck dials and binds without searching.
func (c *DirectoryClient) HealthCheck() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	if c.cfg.BindDN != "" {
		return conn.Bind(c.cfg.BindDN, c.cfg.BindPassword)
	}
	return nil
}

func (c *DirectoryClient) dial() (*ldap.Conn, error) {
	if strings.HasPrefix(c.cfg.URL, "ldaps://") {
		return ldap.DialURL(c.cfg.URL, ldap.DialWithTLSConfig(c.tlsConfig()))
	}
	return ldap.DialURL(c.cfg.URL)
}

func (c *DirectoryClient) tlsConfig() *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.rootCAs != nil {
		cfg.RootCAs = c.rootCAs()
	}
	return cfg
}

func parseEntry(e *ldap.Entry) *DirectoryEntry {
	username := firstAttr(e, "uid", "sAMAccountName")
	if username == "" {
		return nil
	}
	externalID := firstAttr(e, "entryUUID", "objectGUID")
	if externalID == "" {
		externalID = e.DN
	}
	return &DirectoryEntry{
		DN:          e.DN,
		Username:    username,
		Email:       e.GetAttributeValue("mail"),
		DisplayName: firstAttr(e, "displayName", "cn"),
		ExternalID:  externalID,
	}
}

func firstAttr(e *ldap.Entry, names ...string) string {
	for _, name := range names {
		if v := e.GetAttributeValue(name); v != "" {
			return v
		}
	}
	return ""
}
