// Package twiml builds component E's call-control XML documents: the
// small response the carrier fetches to decide whether to bridge via SIP
// or stream audio to the Bridge over a WebSocket (spec.md §4.5).
package twiml

import (
	"encoding/xml"
	"fmt"
	"net/url"
)

// Mode selects which document shape to build.
type Mode string

const (
	ModeStream Mode = "stream"
	ModeSIP    Mode = "sip"
	ModeSimple Mode = "simple"
)

// Response is the root TwiML element. Exactly one of Start, Dial, or Say
// is populated depending on Mode.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Start   *Start   `xml:"Start,omitempty"`
	Pause   *Pause   `xml:"Pause,omitempty"`
	Dial    *Dial    `xml:"Dial,omitempty"`
	Say     *Say     `xml:"Say,omitempty"`
}

type Start struct {
	Stream Stream `xml:"Stream"`
}

type Stream struct {
	URL string `xml:"url,attr"`
}

type Pause struct {
	Length int `xml:"length,attr"`
}

type Dial struct {
	Sip string `xml:"Sip"`
}

type Say struct {
	Text string `xml:",chardata"`
}

// BuildStream emits <Response><Start><Stream url="…"/></Start><Pause
// length="60"/></Response>. The Pause keeps the call alive while the
// Bridge drives the conversation over the stream.
func BuildStream(streamURL string) ([]byte, error) {
	doc := Response{
		Start: &Start{Stream: Stream{URL: streamURL}},
		Pause: &Pause{Length: 60},
	}
	return marshal(doc)
}

// SIPTarget describes the SIP URI parameters (spec.md §4.5).
type SIPTarget struct {
	Token     string
	Gateway   string
	Scheme    string // "sip" or "sips", default "sip"
	Transport string // "tls", "tcp", or "udp"; ignored when Scheme is "sips"
	Port      int    // default 5061
}

// BuildSIP emits <Response><Dial><Sip>sip:TOKEN@gateway:5061;transport=tls</Sip></Dial></Response>
// with the defaults, or sips:TOKEN@gateway:PORT with no transport parameter.
func BuildSIP(t SIPTarget) ([]byte, error) {
	scheme := t.Scheme
	if scheme == "" {
		scheme = "sip"
	}
	port := t.Port
	if port == 0 {
		port = 5061
	}
	transport := t.Transport
	if transport == "" {
		transport = "tls"
	}

	var uri string
	if scheme == "sips" {
		uri = fmt.Sprintf("sips:%s@%s:%d", t.Token, t.Gateway, port)
	} else {
		uri = fmt.Sprintf("sip:%s@%s:%d;transport=%s", t.Token, t.Gateway, port, transport)
	}

	doc := Response{Dial: &Dial{Sip: uri}}
	return marshal(doc)
}

// BuildSimple emits a static spoken-message document, used when the Bridge
// is not reachable from this deployment.
func BuildSimple(message string) ([]byte, error) {
	doc := Response{Say: &Say{Text: message}}
	return marshal(doc)
}

// BuildForbidden emits the fail-closed document for a carrier-signature
// verification failure (spec.md §4.5 security section).
func BuildForbidden() ([]byte, error) {
	doc := Response{Say: &Say{Text: "Forbidden"}}
	return marshal(doc)
}

// BuildMintFailure emits the fail-closed spoken-error document used when
// credential minting fails before a stream/SIP document can be built.
func BuildMintFailure() ([]byte, error) {
	doc := Response{Say: &Say{Text: "We're sorry, the service is temporarily unavailable. Please try again later."}}
	return marshal(doc)
}

func marshal(doc Response) ([]byte, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling TwiML document: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// EmbedCredentialInPath appends the credential as a URL path segment,
// URL-escaped, for carriers that strip query strings before reaching the
// Bridge.
func EmbedCredentialInPath(base, credential string) string {
	return base + "/" + url.PathEscape(credential)
}

// EmbedCredentialInQuery appends the credential as a "secret" query
// parameter.
func EmbedCredentialInQuery(base, credential string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?secret=" + url.QueryEscape(credential)
	}
	q := u.Query()
	q.Set("secret", credential)
	u.RawQuery = q.Encode()
	return u.String()
}
