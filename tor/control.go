// Package tor talks to a Tor daemon's control port to rotate exit nodes and
// to verify that scraping traffic actually leaves through the proxy.
package tor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var (
	ErrAuthFailed    = errors.New("tor control port authentication failed")
	ErrCommandFailed = errors.New("tor control port command failed")
)

// Controller is a minimal control port client. The control protocol is line
// based: every accepted command is answered with a line starting in 250.
type Controller struct {
	Addr     string
	Password string
	Timeout  time.Duration
}

func NewController(addr, password string) *Controller {
	return &Controller{
		Addr:     addr,
		Password: password,
		Timeout:  10 * time.Second,
	}
}

// RotateIdentity asks Tor for a new circuit, changing the exit IP.
func (c *Controller) RotateIdentity() error {
	return c.send("SIGNAL NEWNYM")
}

// CircuitEstablished reports whether Tor has a usable circuit.
func (c *Controller) CircuitEstablished() (bool, error) {
	replies, err := c.roundTrip("GETINFO status/circuit-established")
	if err != nil {
		return false, err
	}
	for _, line := range replies {
		if strings.Contains(line, "circuit-established=1") {
			return true, nil
		}
	}
	return false, nil
}

func (c *Controller) send(command string) error {
	_, err := c.roundTrip(command)
	return err
}

func (c *Controller) roundTrip(command string) ([]string, error) {
	conn, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dial control port: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.Timeout))

	reader := bufio.NewReader(conn)

	if err := writeLine(conn, fmt.Sprintf("AUTHENTICATE %q", c.Password)); err != nil {
		return nil, err
	}
	if _, err := expectOK(reader); err != nil {
		return nil, ErrAuthFailed
	}

	if err := writeLine(conn, command); err != nil {
		return nil, err
	}
	replies, err := expectOK(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandFailed, command)
	}

	writeLine(conn, "QUIT")
	return replies, nil
}

func writeLine(conn net.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

// expectOK reads reply lines until the final one. Multi-line replies use
// "250-" or "250+" continuations and end with "250 OK".
func expectOK(reader *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)
		if !strings.HasPrefix(line, "250") {
			return nil, fmt.Errorf("control port replied %q", line)
		}
		if strings.HasPrefix(line, "250 ") || line == "250" {
			return lines, nil
		}
	}
}

var ipv4Re = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// ProxyDistinct checks that the proxied client exits with a different IP
// than the direct one, using an external IP reporter endpoint.
func ProxyDistinct(scraping, direct *http.Client, ipReporterURL string) (bool, error) {
	proxiedIP, err := fetchIP(scraping, ipReporterURL)
	if err != nil {
		return false, fmt.Errorf("proxied IP lookup: %w", err)
	}
	directIP, err := fetchIP(direct, ipReporterURL)
	if err != nil {
		return false, fmt.Errorf("direct IP lookup: %w", err)
	}
	return proxiedIP != directIP, nil
}

func fetchIP(client *http.Client, url string) (string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if !ipv4Re.MatchString(ip) {
		return "", fmt.Errorf("IP reporter returned %q", ip)
	}
	return ip, nil
}
