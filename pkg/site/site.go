// Package site describes the forum platforms the bot knows how to drive:
// where the buttons are, how post links look and how post ids are derived.
package site

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/entrhq/forumreply/pkg/browser"
	"github.com/entrhq/forumreply/pkg/locator"
)

// Affordance names one logical UI element of a forum.
type Affordance string

const (
	PostLink         Affordance = "post_link"
	Content          Affordance = "content"
	Solved           Affordance = "solved"
	Reply            Affordance = "reply"
	Editor           Affordance = "editor"
	Submit           Affordance = "submit"
	SignIn           Affordance = "sign_in"
	SignInSecondary  Affordance = "sign_in_secondary"
	Username         Affordance = "username"
	UsernameContinue Affordance = "username_continue"
	Password         Affordance = "password"
	LoginSubmit      Affordance = "login_submit"
	LoggedIn         Affordance = "logged_in"
	SendCode         Affordance = "send_code"
	CodeInput        Affordance = "code_input"
	CodeSubmit       Affordance = "code_submit"
)

// Affordances lists every affordance a profile may define.
var Affordances = []Affordance{
	PostLink, Content, Solved, Reply, Editor, Submit,
	SignIn, SignInSecondary, Username, UsernameContinue, Password, LoginSubmit, LoggedIn,
	SendCode, CodeInput, CodeSubmit,
}

// ErrUnknownProfile is returned by Lookup for names with no built-in profile.
var ErrUnknownProfile = errors.New("unknown site profile")

// Profile is everything platform-specific about a forum engine.
type Profile struct {
	// Name identifies the profile ("discourse", "khoros").
	Name string

	locators map[Affordance]locator.Descriptor

	// IDPatterns extract the post id from a post URL; the first capture group
	// of the first matching pattern wins.
	IDPatterns []*regexp.Regexp

	// ResolutionMarkers are lower-case phrases whose presence in the visible
	// page text marks a thread as solved.
	ResolutionMarkers []string

	// SecondFactorURL lists lower-case URL fragments that indicate a
	// second-factor challenge page.
	SecondFactorURL []string

	// CodeSender is the address second-factor codes are mailed from.
	CodeSender string

	// Include and Exclude are URL globs applied to discovered links.
	Include []string
	Exclude []string
}

// Locator returns the descriptor for a, or a zero Descriptor when the
// profile does not define it.
func (p Profile) Locator(a Affordance) locator.Descriptor {
	d, ok := p.locators[a]
	if !ok {
		return locator.Descriptor{Name: string(a)}
	}
	return d
}

// Override returns a copy of p with the candidate lists of the named
// affordances replaced.
func (p Profile) Override(selectors map[string][]browser.Selector) (Profile, error) {
	out := p.clone()
	names := make([]string, 0, len(selectors))
	for name := range selectors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a := Affordance(name)
		if !known(a) {
			return Profile{}, fmt.Errorf("profile %s: unknown affordance %q", p.Name, name)
		}
		cands := selectors[name]
		for i, sel := range cands {
			if sel.IsZero() {
				return Profile{}, fmt.Errorf("profile %s: %s selector %d is empty", p.Name, name, i)
			}
		}
		out.locators[a] = locator.New(describe(a), cands...)
	}
	return out, nil
}

// WithPatterns returns a copy of p whose URL filter patterns are extended by
// include and exclude.
func (p Profile) WithPatterns(include, exclude []string) Profile {
	out := p.clone()
	out.Include = append(out.Include, include...)
	out.Exclude = append(out.Exclude, exclude...)
	return out
}

// Filter compiles the profile's URL patterns.
func (p Profile) Filter() (*URLFilter, error) {
	return NewURLFilter(p.Include, p.Exclude)
}

// PostID derives the stable post identifier from a post URL. ok is false
// when no identifier can be derived.
func (p Profile) PostID(rawURL string) (id string, ok bool) {
	for _, re := range p.IDPatterns {
		if m := re.FindStringSubmatch(rawURL); len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return "", false
	}
	return last, true
}

// IsSecondFactorURL reports whether rawURL looks like a second-factor page.
func (p Profile) IsSecondFactorURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, frag := range p.SecondFactorURL {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// HasResolutionMarker reports whether text contains one of the profile's
// resolution markers, ignoring case.
func (p Profile) HasResolutionMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range p.ResolutionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (p Profile) clone() Profile {
	out := p
	out.locators = make(map[Affordance]locator.Descriptor, len(p.locators))
	for k, v := range p.locators {
		out.locators[k] = v
	}
	out.IDPatterns = append([]*regexp.Regexp(nil), p.IDPatterns...)
	out.ResolutionMarkers = append([]string(nil), p.ResolutionMarkers...)
	out.SecondFactorURL = append([]string(nil), p.SecondFactorURL...)
	out.Include = append([]string(nil), p.Include...)
	out.Exclude = append([]string(nil), p.Exclude...)
	return out
}

func known(a Affordance) bool {
	for _, k := range Affordances {
		if k == a {
			return true
		}
	}
	return false
}

// describe turns an affordance into a log label ("login_submit" -> "login submit").
func describe(a Affordance) string {
	return strings.ReplaceAll(string(a), "_", " ")
}

func locators(defs map[Affordance][]browser.Selector) map[Affordance]locator.Descriptor {
	out := make(map[Affordance]locator.Descriptor, len(defs))
	for a, cands := range defs {
		out[a] = locator.New(describe(a), cands...)
	}
	return out
}

// Lookup returns the built-in profile called name.
func Lookup(name string) (Profile, error) {
	switch strings.ToLower(name) {
	case "discourse":
		return Discourse(), nil
	case "khoros", "lithium":
		return Khoros(), nil
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
}
