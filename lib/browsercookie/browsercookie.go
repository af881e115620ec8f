// Package browsercookie pulls the origin platform's session cookie out of
// a locally installed browser's cookie store, so the tool can skip the
// interactive login entirely.
package browsercookie

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// value of the cookie that carries the Brightwheel web session
const SessionCookieName = "_brightwheel_v2"

const DefaultDomain = "mybrightwheel.com"

var chromeCookiePaths = []string{
	"Library/Application Support/Google/Chrome/Default/Cookies", // macOS
	".config/google-chrome/Default/Cookies",                     // Linux
	"AppData/Local/Google/Chrome/User Data/Default/Cookies",     // Windows
}

var firefoxProfileRoots = []string{
	"Library/Application Support/Firefox/Profiles", // macOS
	".mozilla/firefox",                             // Linux
	"AppData/Roaming/Mozilla/Firefox/Profiles",     // Windows
}

func queryCookies(dbPath, query, domain string) (map[string]string, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(query, "%"+domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cookies := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		cookies[name] = value
	}
	return cookies, rows.Err()
}

// Chrome reads cookies for the domain from Chrome's sqlite cookie
// database, trying each platform's default profile location.
func Chrome(domain string) (map[string]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	for _, rel := range chromeCookiePaths {
		path := filepath.Join(home, rel)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cookies, err := queryCookies(
			path,
			"SELECT name, value FROM cookies WHERE host_key LIKE ?",
			domain,
		)
		if err != nil {
			slog.Warn("failed to read chrome cookies", "path", path, "err", err)
			continue
		}
		slog.Info("extracted cookies from chrome", "count", len(cookies))
		return cookies, nil
	}
	return nil, fmt.Errorf("no readable chrome cookie database found")
}

// Firefox reads cookies for the domain from any default Firefox profile.
func Firefox(domain string) (map[string]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	for _, rel := range firefoxProfileRoots {
		profiles, err := filepath.Glob(filepath.Join(home, rel, "*.default*"))
		if err != nil {
			continue
		}
		for _, profile := range profiles {
			path := filepath.Join(profile, "cookies.sqlite")
			if _, err := os.Stat(path); err != nil {
				continue
			}
			cookies, err := queryCookies(
				path,
				"SELECT name, value FROM moz_cookies WHERE host LIKE ?",
				domain,
			)
			if err != nil {
				slog.Warn("failed to read firefox cookies", "path", path, "err", err)
				continue
			}
			slog.Info("extracted cookies from firefox", "count", len(cookies))
			return cookies, nil
		}
	}
	return nil, fmt.Errorf("no readable firefox cookie database found")
}

// SessionCookie scans Chrome then Firefox for the Brightwheel session
// cookie. Returns an empty string when no browser has one.
func SessionCookie() string {
	if cookies, err := Chrome(DefaultDomain); err == nil {
		if v, ok := cookies[SessionCookieName]; ok {
			slog.Info("found session cookie in chrome")
			return v
		}
	}
	if cookies, err := Firefox(DefaultDomain); err == nil {
		if v, ok := cookies[SessionCookieName]; ok {
			slog.Info("found session cookie in firefox")
			return v
		}
	}
	slog.Warn("could not find a session cookie in any browser")
	return ""
}

// Instructions explains how to copy the cookie out of a browser by hand,
// for when the automatic scan comes up empty.
func Instructions() string {
	return `To manually extract your Brightwheel session cookie:

1. Open your browser and go to https://schools.mybrightwheel.com
2. Login to your account
3. Open Developer Tools (F12 or right-click -> Inspect)
4. Go to the "Application" tab (Chrome) or "Storage" tab (Firefox)
5. Under "Cookies", find the mybrightwheel.com entry
6. Look for the "` + SessionCookieName + `" cookie
7. Copy the cookie value (the long string)
8. Export it before running the transfer:
   export BRIGHTWHEEL_SESSION_COOKIE="your_cookie_value_here"
`
}
