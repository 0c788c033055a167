// Package proxy fetches a remote Mini App's HTML and rewrites it so every
// resource reference resolves back through the proxy, with the SDK bootstrap
// script guaranteed to run before any of the app's own scripts.
package proxy

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/nounspace/miniapp-host/internal/session"
)

// rewriteAttrs are the attributes whose root-relative values get prefixed
// with the proxy root. Everything else resolves through the injected <base>.
var rewriteAttrs = []string{"src", "href", "action", "poster"}

var cssURLPattern = regexp.MustCompile(`url\(\s*(['"]?)(/[^/'")\s][^'")\s]*)(['"]?)\s*\)`)

// Rewrite transforms the fetched document for the given session: root-relative
// references are prefixed with the session's proxy root, a <base> tag and the
// SDK bootstrap script are injected at the top of <head>, and the result is
// safe to rewrite again without double-injection or double-prefixing.
func Rewrite(htmlSrc string, sess session.Session) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return "", fmt.Errorf("failed to parse target document: %w", err)
	}

	root := sess.ProxyRoot
	for _, attr := range rewriteAttrs {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(attr); ok {
				s.SetAttr(attr, rewritePath(v, root))
			}
		})
	}

	doc.Find("[srcset]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("srcset"); ok {
			s.SetAttr("srcset", rewriteSrcset(v, root))
		}
	})

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		s.SetText(rewriteCSS(s.Text(), root))
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("style"); ok {
			s.SetAttr("style", rewriteCSS(v, root))
		}
	})

	// Injection failures must not abort the response: a document without
	// context injection still beats a blank iframe
	if err := inject(doc, sess, htmlSrc); err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Msg("bootstrap injection failed, serving rewritten document without it")
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize rewritten document: %w", err)
	}
	return out, nil
}

// inject adds the <base> tag and the bootstrap script as the first children
// of <head>. The parser synthesizes <head> when the document lacks one, which
// places the injected nodes immediately after <html> as required.
func inject(doc *goquery.Document, sess session.Session, original string) error {
	head := doc.Find("head").First()
	if head.Length() == 0 {
		return fmt.Errorf("document has no head node after parsing")
	}

	// Script goes in before base so the final order is base, then script
	if !strings.Contains(original, BootstrapMarker) {
		script, err := BootstrapScript(sess)
		if err != nil {
			return err
		}
		head.PrependHtml("<script>" + script + "</script>")
	}

	baseHref := sess.ProxyRoot + targetBasePath(sess.TargetURL)
	if existing := doc.Find("base").First(); existing.Length() > 0 {
		// Keep the app's own <base> node (and its target attribute),
		// repointing only the href
		existing.SetAttr("href", baseHref)
	} else {
		head.PrependHtml(fmt.Sprintf("<base href=%q/>", baseHref))
	}

	return nil
}

// targetBasePath computes the directory path of the target URL, with a
// trailing slash, for the injected <base> href.
func targetBasePath(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/"
	}
	p := u.Path
	if !strings.HasSuffix(p, "/") {
		p = path.Dir(p)
		if p != "/" {
			p += "/"
		}
	}
	return p
}

// rewritePath prefixes a root-relative path with the proxy root. Absolute
// URLs, protocol-relative URLs, and paths already under the proxy root pass
// through untouched, which is what makes the rewrite idempotent.
func rewritePath(p, proxyRoot string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return p
	}
	if p == proxyRoot || strings.HasPrefix(p, proxyRoot+"/") {
		return p
	}
	return proxyRoot + p
}

// rewriteSrcset rewrites each URL candidate in a srcset value independently,
// preserving resolution descriptors.
func rewriteSrcset(srcset, proxyRoot string) string {
	candidates := strings.Split(srcset, ",")
	for i, candidate := range candidates {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		fields[0] = rewritePath(fields[0], proxyRoot)
		candidates[i] = strings.Join(fields, " ")
	}
	return strings.Join(candidates, ", ")
}

// rewriteCSS rewrites root-relative url(...) references in CSS text.
func rewriteCSS(css, proxyRoot string) string {
	return cssURLPattern.ReplaceAllStringFunc(css, func(m string) string {
		parts := cssURLPattern.FindStringSubmatch(m)
		return "url(" + parts[1] + rewritePath(parts[2], proxyRoot) + parts[3] + ")"
	})
}
