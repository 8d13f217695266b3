package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	texttemplate "text/template"

	"key-service/pkg/mailer/registry"
)

// Source holds the raw template text for one kind of message. Subject and
// HTML are required; Text is optional.
type Source struct {
	Subject string
	HTML    string
	Text    string
}

// Rendered is one message produced by a template.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Parser normalizes and validates a context before it is rendered.
type Parser[T any] func(context T) (T, error)

type TypedTemplate[T any] struct {
	Name    string
	subject *texttemplate.Template
	html    *template.Template
	text    *texttemplate.Template
	parse   Parser[T]
}

// Render runs the parser and all parts of the template. The subject is
// collapsed onto one line whatever the context contains.
func (t *TypedTemplate[T]) Render(context T) (Rendered, error) {
	if t.parse != nil {
		parsed, err := t.parse(context)
		if err != nil {
			return Rendered{}, err
		}
		context = parsed
	}

	subject, err := execute(t.Name, t.subject, context)
	if err != nil {
		return Rendered{}, err
	}
	html, err := execute(t.Name, t.html, context)
	if err != nil {
		return Rendered{}, err
	}
	out := Rendered{
		Subject: strings.Join(strings.Fields(subject), " "),
		HTML:    html,
	}

	if t.text != nil {
		if out.Text, err = execute(t.Name, t.text, context); err != nil {
			return Rendered{}, err
		}
	}
	return out, nil
}

type executor interface {
	Execute(w io.Writer, data any) error
}

func execute(name string, tmpl executor, context any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf(registry.MsgRenderFailedFmt, name, err)
	}
	return buf.String(), nil
}

func NewTemplate[T any](name string, src Source, parser Parser[T]) (*TypedTemplate[T], error) {
	if strings.TrimSpace(src.Subject) == "" || strings.TrimSpace(src.HTML) == "" {
		return nil, registry.ErrTemplateSourceIncomplete(name)
	}

	subject, err := texttemplate.New(name + "_subject").Parse(src.Subject)
	if err != nil {
		return nil, err
	}
	html, err := template.New(name + "_html").Parse(src.HTML)
	if err != nil {
		return nil, err
	}

	var text *texttemplate.Template
	if src.Text != "" {
		if text, err = texttemplate.New(name + "_text").Parse(src.Text); err != nil {
			return nil, err
		}
	}

	return &TypedTemplate[T]{
		Name:    name,
		subject: subject,
		html:    html,
		text:    text,
		parse:   parser,
	}, nil
}
