package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
)

var newsletterTemplate = template.Must(template.New("newsletter").Parse(`
<html><body style='font-family:Arial, sans-serif; background:#f4f4f4; padding:20px; margin:0;'>
<div style='background:#fff; max-width:600px; margin:0 auto; border-radius:8px; overflow:hidden; box-shadow:0 4px 10px rgba(0,0,0,0.1);'>

    <div style='background:#000; padding:30px 20px; text-align:center;'>
        <img src="{{.LogoURL}}" alt="{{.Brand}}" style="max-width: 150px; height: auto; display: block; margin: 0 auto;">
        <p style='color:#888; font-size:12px; text-transform:uppercase; letter-spacing:2px; margin-top:10px;'>Data Intelligence</p>
    </div>

    <div style='padding:30px; color:#333; line-height:1.6;'>
        {{.Body}}
    </div>

    <div style='background:#f9f9f9; padding:20px; text-align:center; border-top:1px solid #eee;'>
        <a href="{{.ShareLink}}" style='display:inline-block; background:#25d366; color:#fff; padding:10px 20px; text-decoration:none; border-radius:5px; font-weight:bold; margin-bottom:10px;'>⏩ RECOMENDAR A UN AMIGO</a>
        <br>
        <a href="{{.SiteURL}}" style='color:#0056b3; font-size:14px; text-decoration:none;'>Ver gráficos en la web</a>
    </div>

</div>
</body></html>
`))

type pageData struct {
	Brand     string
	LogoURL   string
	SiteURL   string
	ShareLink template.URL
	Body      template.HTML
}

// RenderHTML converts the markdown draft and wraps it in the newsletter
// layout.
func RenderHTML(markdown, brand, logoURL, siteURL string) (string, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	share := "mailto:?subject=" + url.PathEscape("Informe Basket") + "&body=" + url.PathEscape("Mira esto: "+siteURL)

	var out bytes.Buffer
	err := newsletterTemplate.Execute(&out, pageData{
		Brand:     brand,
		LogoURL:   logoURL,
		SiteURL:   siteURL,
		ShareLink: template.URL(share),
		Body:      template.HTML(body.String()),
	})
	if err != nil {
		return "", fmt.Errorf("render newsletter: %w", err)
	}
	return out.String(), nil
}

// PlainText is the text/plain alternative of the draft.
func PlainText(body string) string {
	var out []string
	prevBlank := false
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			line = strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
		}
		line = strings.ReplaceAll(line, "**", "")
		if strings.TrimSpace(line) == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
			out = append(out, "")
			continue
		}
		prevBlank = false
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}
