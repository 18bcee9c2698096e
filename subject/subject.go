// Package subject holds the catalog of topics a conversation can be scoped
// to and the helpers that turn a subject selection into prompt text.
package subject

import (
	"fmt"
	"sort"
	"strings"

	"github.com/creastat/chatguard"
)

// Separator joins several subjects into one session label.
const Separator = ","

// DefaultContexts returns the built-in subject descriptions.
func DefaultContexts() map[string]string {
	return map[string]string{
		"codigo":      "código e desenvolvimento de software",
		"programacao": "programação e linguagens de programação",
		"dados":       "ciência de dados, análise e engenharia de dados",
		"devops":      "DevOps, infraestrutura, CI/CD, cloud e observabilidade",
	}
}

// Catalog is the fixed set of subjects known to the process.
type Catalog struct {
	contexts map[string]string
	names    []string
}

// NewCatalog creates a catalog from subject name to context description.
// Names are lowercased.
func NewCatalog(contexts map[string]string) *Catalog {
	c := &Catalog{contexts: make(map[string]string, len(contexts))}
	for name, ctx := range contexts {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		c.contexts[name] = ctx
	}
	for name := range c.contexts {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

// Default returns the catalog of built-in subjects.
func Default() *Catalog {
	return NewCatalog(DefaultContexts())
}

// Names returns the subject names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Context returns the description of a subject.
func (c *Catalog) Context(name string) (string, bool) {
	ctx, ok := c.contexts[name]
	return ctx, ok
}

// Parse validates a subject selection. Each entry is trimmed and
// lowercased; duplicates are dropped keeping first-seen order.
func (c *Catalog) Parse(raw ...string) ([]string, error) {
	var (
		out     []string
		invalid []string
		seen    = make(map[string]struct{}, len(raw))
	)
	for _, r := range raw {
		name := strings.ToLower(strings.TrimSpace(r))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := c.contexts[name]; !ok {
			invalid = append(invalid, r)
			continue
		}
		out = append(out, name)
	}

	valid := strings.Join(c.names, ", ")
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %s; must be one or more of: %s",
			chatguard.ErrInvalidSubject, strings.Join(invalid, ", "), valid)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one subject is required, one or more of: %s",
			chatguard.ErrInvalidSubject, valid)
	}
	return out, nil
}

// CombinedContext joins the descriptions of subjects into one phrase:
// "a", "a e b", "a, b e c".
func (c *Catalog) CombinedContext(subjects []string) string {
	contexts := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if ctx, ok := c.contexts[s]; ok {
			contexts = append(contexts, ctx)
		} else {
			contexts = append(contexts, s)
		}
	}

	switch len(contexts) {
	case 0:
		return ""
	case 1:
		return contexts[0]
	default:
		last := len(contexts) - 1
		return strings.Join(contexts[:last], ", ") + " e " + contexts[last]
	}
}

// SystemPrompt renders the system message that scopes the assistant to
// subjects.
func (c *Catalog) SystemPrompt(subjects []string) string {
	return strings.ReplaceAll(systemPromptTemplate, "{{context}}", c.CombinedContext(subjects))
}

// Join encodes subjects as a session label.
func Join(subjects []string) string {
	return strings.Join(subjects, Separator)
}

// Split decodes a session label produced by Join.
func Split(label string) []string {
	if strings.TrimSpace(label) == "" {
		return nil
	}
	parts := strings.Split(label, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const systemPromptTemplate = `Você é um assistente especializado EXCLUSIVAMENTE em {{context}}.

REGRAS DE ESCOPO:
- Você DEVE responder APENAS sobre tópicos relacionados a {{context}}.
- Se a pergunta não estiver relacionada a {{context}}, você DEVE responder: "Desculpe, só posso responder perguntas sobre {{context}}. Por favor, faça uma pergunta relacionada a esse tema."
- NÃO responda perguntas sobre outros assuntos, mesmo que sejam técnicos.
- Mantenha o foco estritamente no tema definido.

ESTILO DE RESPOSTA:
- Seja OBJETIVO: vá direto ao ponto, sem introduções longas.
- Seja ASSERTIVO: use linguagem clara e confiante.
- Seja DIDÁTICO: explique conceitos do simples ao complexo.
- Use EXEMPLOS PRÁTICOS quando apropriado.

FORMATO:
- Use markdown para melhor legibilidade
- Destaque código com blocos de código quando necessário
- Use listas para organizar informações
- Seja conciso mas completo`
