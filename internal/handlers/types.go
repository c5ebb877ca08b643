package handlers

import (
	"tagihin_dashboard/internal/gate"
	"tagihin_dashboard/internal/payment"
	"tagihin_dashboard/internal/platform"
)

// Breadcrumb represents a navigation trail
type Breadcrumb struct {
	Title string
	URL   string
}

// PageData is the common data structure passed to page templates.
// Using this ensures type safety and consistency.
type PageData struct {
	Title           string
	ActiveNav       string
	Breadcrumbs     []Breadcrumb
	Principal       *platform.Principal
	Gate            gate.Decision
	BannerDismissed bool
	Tracker         *payment.View // set when the page carries a payment flow
	Data            interface{}   // Page-specific data
}
