package view

import (
	"fmt"
	"strings"
)

// View は画面の種類です
type View int

const (
	ViewLogin View = iota
	ViewDashboard
	ViewGuide
	ViewManual
	ViewSupport
	ViewCheckout
	ViewThanks
	ViewAdmin
)

var viewNames = map[View]string{
	ViewLogin:     "login",
	ViewDashboard: "dashboard",
	ViewGuide:     "guide",
	ViewManual:    "manual",
	ViewSupport:   "support",
	ViewCheckout:  "checkout",
	ViewThanks:    "thanks",
	ViewAdmin:     "admin",
}

func (v View) String() string {
	if name, ok := viewNames[v]; ok {
		return name
	}
	return fmt.Sprintf("view(%d)", int(v))
}

// MarshalText は画面名の文字列として出力します
func (v View) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// ParseView は画面名から View を返します。空文字はダッシュボードです
func ParseView(s string) (View, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ViewDashboard, nil
	}
	for v, name := range viewNames {
		if name == s {
			return v, nil
		}
	}
	return ViewDashboard, fmt.Errorf("unknown view %q", s)
}

// Access は画面を決めるためのセッションと予約の状態です
type Access struct {
	Authenticated bool
	Admin         bool
	Locked        bool
	CheckedOut    bool
}

// Resolve は要求された画面を状態に応じて実際に表示する画面に解決します
func Resolve(requested View, a Access) View {
	if !a.Authenticated {
		return ViewLogin
	}

	switch requested {
	case ViewLogin, ViewDashboard:
		return ViewDashboard
	case ViewGuide, ViewManual, ViewSupport, ViewCheckout:
		if a.Locked {
			return ViewDashboard
		}
		return requested
	case ViewThanks:
		if a.CheckedOut {
			return ViewThanks
		}
		return ViewDashboard
	case ViewAdmin:
		if a.Admin {
			return ViewAdmin
		}
		return ViewDashboard
	default:
		return ViewDashboard
	}
}
