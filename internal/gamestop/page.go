package gamestop

// Page is the rendered state of the estimate page after a lookup.
type Page struct {
	URL      string
	HTML     string
	BodyText string
}
