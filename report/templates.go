package report

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/martroben/apartmentbot/models"
)

const listingTemplateText = `<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="margin-bottom:24px;">
  <tr>
    <td width="180" valign="top">
      <a href="{{.URL}}"><img src="{{.ImageURL}}" width="180" alt="" style="border-radius:4px;"></a>
    </td>
    <td valign="top" style="padding-left:16px;font-family:Helvetica,Arial,sans-serif;">
      <h3 style="margin:0 0 8px 0;">{{if .Highlight}}&#x1f525; {{end}}<a href="{{.URL}}" style="color:#1f7a8c;text-decoration:none;">{{.Address}}</a></h3>
      <p style="margin:0;color:#283d3b;">
        <strong>{{printf "%.0f" .Price}} &euro;</strong><br>
        {{.NRooms}} rooms, {{.AreaM2}} m&sup2;<br>
        built: {{.ConstructionYear}}<br>
        listed: {{.DateListed}}
      </p>
    </td>
  </tr>
</table>`

const emailTemplateText = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="margin:0;padding:0;background:#f4f4f4;">
  <div style="display:none;max-height:0;overflow:hidden;">{{.Preheader}}</div>
  <table role="presentation" width="100%" cellpadding="0" cellspacing="0">
    <tr>
      <td align="center">
        <table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;">
          <tr>
            <td style="background:#1f7a8c;padding:24px;font-family:Helvetica,Arial,sans-serif;color:#ffffff;">
              <h1 style="margin:0;">&#x1f307; {{.Heading}}</h1>
              <p style="margin:4px 0 0 0;">{{.Subheading}}</p>
            </td>
          </tr>
          <tr>
            <td style="padding:24px;">
              {{.Listings}}
            </td>
          </tr>
          <tr>
            <td style="background:#283d3b;padding:16px 24px;font-family:Helvetica,Arial,sans-serif;color:#ffffff;font-size:12px;">
              <a href="{{.SignatureURL}}" style="color:#ffffff;">&#129302; ap4rtm&#8707;n+bot</a><br>
              {{.Signature}}
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`

var (
	listingTemplate = template.Must(template.New("listing").Parse(listingTemplateText))
	emailTemplate   = template.Must(template.New("email").Parse(emailTemplateText))
)

var signatures = []string{
	"Your friendly neighborhood web scraper, here to find you the perfect property.",
	"I may be a machine, but I know a thing or two about real estate.",
	"I may not have a physical form, but I have my eye on the property market.",
	"All your base are belong to us!",
	"The cake is a lie!",
	"Still a better love story than Twilight.",
}

type listingView struct {
	URL              string
	ImageURL         string
	Address          string
	Price            float64
	NRooms           int
	AreaM2           float64
	ConstructionYear string
	DateListed       string
	Highlight        bool
}

// renderListing produces the HTML block for one listing.
func renderListing(l *models.Listing, highlight bool) (template.HTML, error) {
	view := listingView{
		URL:              l.URL,
		ImageURL:         l.ImageURL,
		Address:          l.Address,
		Price:            l.Price,
		NRooms:           l.NRooms,
		AreaM2:           l.AreaM2,
		ConstructionYear: "-",
		DateListed:       time.Unix(int64(l.DateListed), 0).Format("02-01-2006"),
		Highlight:        highlight,
	}
	if l.ConstructionYear != 0 {
		view.ConstructionYear = fmt.Sprintf("%d", l.ConstructionYear)
	}

	var sb strings.Builder
	if err := listingTemplate.Execute(&sb, view); err != nil {
		return "", err
	}
	return template.HTML(sb.String()), nil
}

type emailView struct {
	Preheader    string
	Heading      string
	Subheading   string
	Listings     template.HTML
	SignatureURL string
	Signature    string
}

// renderEmail assembles one notification email from rendered listing blocks.
func renderEmail(listings []template.HTML, date time.Time, signature string) (string, error) {
	var blocks []string
	for _, l := range listings {
		blocks = append(blocks, string(l))
	}

	view := emailView{
		Preheader:    fmt.Sprintf("%d new listings. Please enjoy responsibly!", len(listings)),
		Heading:      "NEW LISTINGS",
		Subheading:   date.Format("02 Jan 2006"),
		Listings:     template.HTML(strings.Join(blocks, "\n")),
		SignatureURL: "https://github.com/martroben/apartmentbot",
		Signature:    signature,
	}

	var sb strings.Builder
	if err := emailTemplate.Execute(&sb, view); err != nil {
		return "", err
	}
	return sb.String(), nil
}
