package tracking

import (
	"github.com/osteele/liquid"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{ title | escape }}</title></head>
<body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
<h1>{{ title | escape }}</h1>
<p>{{ message | escape }}</p>
</body>
</html>
`

type page struct {
	title   string
	message string
}

var (
	pageUnsubscribed = page{"Unsubscribed", "You have been successfully unsubscribed from future mailings."}
	pageMissingLead  = page{"Error", "Invalid unsubscribe link. Lead identifier is missing."}
	pageFailed       = page{"Error", "An error occurred while processing your unsubscribe request."}
)

type pageRenderer struct {
	tpl *liquid.Template
}

func newPageRenderer() (*pageRenderer, error) {
	tpl, err := liquid.NewEngine().ParseString(pageTemplate)
	if err != nil {
		return nil, err
	}
	return &pageRenderer{tpl: tpl}, nil
}

func (r *pageRenderer) render(p page) ([]byte, error) {
	out, err := r.tpl.Render(map[string]interface{}{
		"title":   p.title,
		"message": p.message,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
