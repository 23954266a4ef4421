package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Source tells subscribers who caused a mutation.
type Source string

const (
	// SourceHost marks content published by the host page.
	SourceHost Source = "host"
	// SourceAnnotation marks markup inserted by the annotation renderer.
	SourceAnnotation Source = "annotation"
)

// Mutation describes a structural change of the document tree.
type Mutation struct {
	Added   []*html.Node
	Removed []*html.Node
	Source  Source
}

var (
	// ErrDetached is returned when an anchor has no parent to insert into.
	ErrDetached = errors.New("node is not attached to the document")
	// ErrEmptyFragment is returned when a fragment parses to nothing.
	ErrEmptyFragment = errors.New("fragment produced no nodes")
)

var fragmentContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// Document is a live HTML tree shared by the pipeline. The tree is only
// touched while holding mu; subscribers are notified after it is released.
type Document struct {
	mu  sync.Mutex
	doc *goquery.Document

	subsMu  sync.Mutex
	subs    map[int]chan Mutation
	nextSub int
}

// New wraps an already parsed goquery document.
func New(doc *goquery.Document) *Document {
	return &Document{doc: doc, subs: map[int]chan Mutation{}}
}

// Parse builds a document from UTF-8 HTML.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return New(doc), nil
}

// View runs fn with exclusive access to the tree. fn may change attributes or
// text, but structural changes must go through the mutation methods so
// subscribers hear about them.
func (d *Document) View(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc)
}

// Exists reports whether selector matches anything.
func (d *Document) Exists(selector string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Find(selector).Length() > 0
}

// InsertAfter parses fragment and places it right after anchor.
func (d *Document) InsertAfter(anchor *html.Node, fragment string, src Source) ([]*html.Node, error) {
	d.mu.Lock()
	if anchor == nil || anchor.Parent == nil {
		d.mu.Unlock()
		return nil, ErrDetached
	}
	nodes, err := parseFragment(fragment)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	next := anchor.NextSibling
	for _, n := range nodes {
		anchor.Parent.InsertBefore(n, next)
	}
	d.mu.Unlock()

	d.publish(Mutation{Added: nodes, Source: src})
	return nodes, nil
}

// Prepend parses fragment and inserts it as the first children of parent.
func (d *Document) Prepend(parent *html.Node, fragment string, src Source) ([]*html.Node, error) {
	d.mu.Lock()
	if parent == nil {
		d.mu.Unlock()
		return nil, ErrDetached
	}
	nodes, err := parseFragment(fragment)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	first := parent.FirstChild
	for _, n := range nodes {
		parent.InsertBefore(n, first)
	}
	d.mu.Unlock()

	d.publish(Mutation{Added: nodes, Source: src})
	return nodes, nil
}

// Append moves nodes (typically taken from another parsed page) under parent.
func (d *Document) Append(parent *html.Node, nodes []*html.Node, src Source) error {
	if len(nodes) == 0 {
		return nil
	}
	d.mu.Lock()
	if parent == nil {
		d.mu.Unlock()
		return ErrDetached
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		parent.AppendChild(n)
	}
	d.mu.Unlock()

	d.publish(Mutation{Added: nodes, Source: src})
	return nil
}

// Remove detaches node and its subtree.
func (d *Document) Remove(node *html.Node, src Source) error {
	d.mu.Lock()
	if node == nil || node.Parent == nil {
		d.mu.Unlock()
		return ErrDetached
	}
	node.Parent.RemoveChild(node)
	d.mu.Unlock()

	d.publish(Mutation{Removed: []*html.Node{node}, Source: src})
	return nil
}

// Render writes the whole document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("render document: %w", err)
		}
	}
	return nil
}

// HTML returns the rendered document.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Subscribe registers for mutation notifications. Notifications are dropped
// for subscribers whose buffer is full; consumers are expected to treat
// additions as triggers, not as an exhaustive change log.
func (d *Document) Subscribe(buffer int) (<-chan Mutation, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Mutation, buffer)

	d.subsMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.subsMu.Lock()
			delete(d.subs, id)
			d.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (d *Document) publish(m Mutation) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- m:
		default:
		}
	}
}

func parseFragment(fragment string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), fragmentContext)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	if len(nodes) == 0 {
		return nil, ErrEmptyFragment
	}
	return nodes, nil
}

// AttrSelector builds an exact attribute selector, safe for ids that are not
// valid CSS identifiers.
func AttrSelector(attr, value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return fmt.Sprintf(`[%s="%s"]`, attr, escaped)
}

// Attr returns the value of key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces key on n.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
