package http

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

const clientScriptTag = `<script src="` + ClientScriptPath + `"></script>`

// InjectClientScript adds the client script tag to an HTML document unless
// the page already loads it.
func InjectClientScript(page []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	if doc.Find(`script[src$="webbridge.js"]`).Length() > 0 {
		return page, nil
	}

	// The HTML parser always synthesizes a head element.
	doc.Find("head").First().AppendHtml(clientScriptTag)

	out, err := doc.Html()
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
