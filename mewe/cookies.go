package mewe

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Jar is a Netscape cookies.txt backed cookie jar. The file format is what
// browser cookie exporters produce, so a logged-in browser session can be
// handed to the bridge directly. Unlike net/http/cookiejar it retains
// expiry metadata, which the session refresh logic needs.
type Jar struct {
	mu      sync.Mutex
	path    string
	cookies map[string]*storedCookie
}

type storedCookie struct {
	Domain     string
	IncludeSub bool
	Path       string
	Secure     bool
	Expires    time.Time
	Name       string
	Value      string
	HttpOnly   bool
}

func cookieKey(domain, path, name string) string {
	return domain + "\x00" + path + "\x00" + name
}

// LoadJar reads a Netscape format cookie file
func LoadJar(path string) (*Jar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening cookie file: %w", err)
	}
	defer file.Close()

	jar := &Jar{path: path, cookies: make(map[string]*storedCookie)}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		httpOnly := false

		if strings.HasPrefix(line, "#HttpOnly_") {
			httpOnly = true
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}

		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}

		cookie := &storedCookie{
			Domain:     fields[0],
			IncludeSub: fields[1] == "TRUE",
			Path:       fields[2],
			Secure:     fields[3] == "TRUE",
			Name:       fields[5],
			Value:      fields[6],
			HttpOnly:   httpOnly,
		}
		if expires > 0 {
			cookie.Expires = time.Unix(expires, 0)
		}
		jar.cookies[cookieKey(cookie.Domain, cookie.Path, cookie.Name)] = cookie
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading cookie file: %w", err)
	}

	return jar, nil
}

// Save writes the jar back in Netscape format. Entries are sorted so
// repeated saves produce identical files.
func (j *Jar) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	keys := make([]string, 0, len(j.cookies))
	for key := range j.cookies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	for _, key := range keys {
		c := j.cookies[key]
		if c.HttpOnly {
			b.WriteString("#HttpOnly_")
		}
		var expires int64
		if !c.Expires.IsZero() {
			expires = c.Expires.Unix()
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Domain, netscapeBool(c.IncludeSub), c.Path, netscapeBool(c.Secure),
			expires, c.Name, c.Value)
	}

	return os.WriteFile(j.path, []byte(b.String()), 0600)
}

func netscapeBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// Get returns a cookie by name regardless of domain. Used to inspect the
// auth cookies the upstream sets on its apex domain.
func (j *Jar) Get(name string) (value string, expires time.Time, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range j.cookies {
		if c.Name == name {
			return c.Value, c.Expires, true
		}
	}
	return "", time.Time{}, false
}

// Cookies implements http.CookieJar
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := u.Hostname()
	now := time.Now()

	keys := make([]string, 0, len(j.cookies))
	for key := range j.cookies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []*http.Cookie
	for _, key := range keys {
		c := j.cookies[key]
		if !domainMatch(host, c.Domain, c.IncludeSub) {
			continue
		}
		if !strings.HasPrefix(u.Path, c.Path) && c.Path != "/" {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// SetCookies implements http.CookieJar, keeping expiry metadata so token
// freshness can be checked without another round trip
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range cookies {
		domain := c.Domain
		includeSub := true
		if domain == "" {
			domain = u.Hostname()
			includeSub = false
		}
		path := c.Path
		if path == "" {
			path = "/"
		}

		expires := c.Expires
		if c.MaxAge > 0 {
			expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
		}

		key := cookieKey(domain, path, c.Name)
		if c.MaxAge < 0 || c.Value == "" {
			delete(j.cookies, key)
			continue
		}

		j.cookies[key] = &storedCookie{
			Domain:     domain,
			IncludeSub: includeSub,
			Path:       path,
			Secure:     c.Secure,
			Expires:    expires,
			Name:       c.Name,
			Value:      c.Value,
			HttpOnly:   c.HttpOnly,
		}
	}
}

func domainMatch(host, domain string, includeSub bool) bool {
	domain = strings.TrimPrefix(domain, ".")
	if host == domain {
		return true
	}
	return includeSub && strings.HasSuffix(host, "."+domain)
}
