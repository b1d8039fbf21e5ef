package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"whatsapp-autoresponder/internal/models"
)

// looseString accepts the string, number, bool and null values the admin
// panel of the first deployment wrote interchangeably.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(b)
	return nil
}

func (s looseString) int() int {
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
		if ferr != nil {
			return 0
		}
		return int(f)
	}
	return n
}

func (s looseString) float() float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	return f
}

func (s looseString) bool() bool {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "true", "1", "sim", "on":
		return true
	}
	return false
}

type legacyRow struct {
	RowID       string `json:"rowId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type legacySection struct {
	Title string      `json:"title"`
	Rows  []legacyRow `json:"rows"`
}

type legacyOption struct {
	ID          looseString `json:"id"`
	Titulo      string      `json:"titulo"`
	Acionador   looseString `json:"acionador"`
	Resposta    string      `json:"resposta"`
	Imagem      string      `json:"imagem"`
	Gif         string      `json:"gif"`
	Pdf         string      `json:"pdf"`
	Audio       string      `json:"audio"`
	Sticker     string      `json:"sticker"`
	Video       string      `json:"video"`
	Localizacao *struct {
		Lat       looseString `json:"lat"`
		Lng       looseString `json:"lng"`
		Descricao string      `json:"descricao"`
	} `json:"localizacao"`
	Delay          looseString       `json:"delay"`
	Digitando      looseString       `json:"mostrarDigitando"`
	Gravando       looseString       `json:"mostrarGravandoAudio"`
	StatusBot      string            `json:"statusBot"`
	TempoPausa     looseString       `json:"tempoPausa"`
	TipoResposta   string            `json:"tipoResposta"`
	Ativo          *bool             `json:"ativo"`
	Link           string            `json:"link"`
	OpcoesLista    []legacySection   `json:"opcoesLista"`
	RespostasLista map[string]string `json:"respostasLista"`
	OpcoesBotoes   []legacyButton    `json:"opcoesBotoes"`
}

type legacyButton struct {
	Texto string `json:"texto"`
	Valor string `json:"valor"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type legacyScheduled struct {
	ID           looseString `json:"id"`
	Nome         string      `json:"nome"`
	Telefone     looseString `json:"telefone"`
	Mensagem     string      `json:"mensagem"`
	Datahora     string      `json:"datahora"`
	Recorrencia  string      `json:"recorrencia"`
	Status       string      `json:"status"`
	TipoResposta string      `json:"tipoResposta"`
	Imagem       string      `json:"imagem"`
	Gif          string      `json:"gif"`
	Pdf          string      `json:"pdf"`
	Audio        string      `json:"audio"`
	Sticker      string      `json:"sticker"`
}

type legacyDocument struct {
	OpcoesMenu         []legacyOption    `json:"opcoesMenu"`
	MensagensAgendadas []legacyScheduled `json:"mensagensAgendadas"`
	PausaAutomatica    map[string]int64  `json:"pausaAutomatica"`
	BotPausado         bool              `json:"botPausado"`
	LogMensagens       []string          `json:"logMensagens"`
	MensagemDefault    string            `json:"mensagemDefault"`
	MensagensParaGrupo bool              `json:"mensagensParaGrupos"`
	HistoricoRespostas map[string]string `json:"historicoRespostas"`
	Votos              map[string]int    `json:"votos"`
	Pdf                string            `json:"pdf"`
	Audio              string            `json:"audio"`
	Gif                string            `json:"gif"`
	Imagem             string            `json:"imagem"`
}

// IsLegacy reports whether data is a document written by the first
// deployment (Portuguese keys, no menuOptions).
func IsLegacy(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	if _, ok := probe["menuOptions"]; ok {
		return false
	}
	_, hasMenu := probe["opcoesMenu"]
	_, hasSched := probe["mensagensAgendadas"]
	return hasMenu || hasSched
}

// DecodeLegacy converts a first-deployment document into the current model.
func DecodeLegacy(r io.Reader) (models.Document, error) {
	var in legacyDocument
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return models.Document{}, fmt.Errorf("decode legacy document: %w", err)
	}

	doc := models.DefaultDocument()
	doc.GlobalPause = in.BotPausado
	doc.Settings.GroupMessages = in.MensagensParaGrupo
	if in.MensagemDefault != "" {
		doc.DefaultMessage = in.MensagemDefault
	}
	for k, v := range in.PausaAutomatica {
		doc.PauseRegistry[strings.TrimSuffix(k, "@c.us")] = v
	}
	for k, v := range in.HistoricoRespostas {
		doc.ResponseHistory[strings.TrimSuffix(k, "@c.us")] = v
	}
	doc.Votes = models.Votes{Yes: in.Votos["Sim"], No: in.Votos["Não"]}
	doc.GlobalMedia = models.GlobalMedia{PDF: in.Pdf, Audio: in.Audio, GIF: in.Gif, Image: in.Imagem}

	for i, o := range in.OpcoesMenu {
		doc.MenuOptions = append(doc.MenuOptions, legacyOptionToModel(i, o))
	}
	for i, m := range in.MensagensAgendadas {
		doc.ScheduledMessages = append(doc.ScheduledMessages, legacyScheduledToModel(i, m))
	}
	for _, line := range in.LogMensagens {
		doc.AppendLog(models.MessageLogEntry{Text: line})
	}
	doc.Normalize()
	return doc, nil
}

func legacyMode(tipo string) models.ResponseMode {
	if tipo == "multipla" {
		return models.ResponseMulti
	}
	return models.ResponseSingle
}

func legacyOptionToModel(i int, o legacyOption) models.MenuOption {
	id := string(o.ID)
	if id == "" {
		id = fmt.Sprintf("legacy-%d", i+1)
	}
	opt := models.MenuOption{
		ID:      id,
		Title:   o.Titulo,
		Trigger: string(o.Acionador),
		Content: models.Content{
			ResponseMode: legacyMode(o.TipoResposta),
			TextBody:     o.Resposta,
			Media: models.MediaRefs{
				Image:   o.Imagem,
				GIF:     o.Gif,
				PDF:     o.Pdf,
				Audio:   o.Audio,
				Sticker: o.Sticker,
				Video:   o.Video,
			},
		},
		Link:               o.Link,
		TypingIndicator:    o.Digitando.bool(),
		RecordingIndicator: o.Gravando.bool(),
		PreDelayMs:         o.Delay.int(),
		UserPauseMinutes:   o.TempoPausa.int(),
		Active:             o.Ativo == nil || *o.Ativo,
	}
	switch o.StatusBot {
	case "pausar":
		opt.BotStatusDirective = models.DirectivePauseAll
	case "despausar":
		opt.BotStatusDirective = models.DirectiveUnpauseAll
	}
	if l := o.Localizacao; l != nil && l.Lat != "" && l.Lng != "" {
		opt.Location = &models.Location{Latitude: l.Lat.float(), Longitude: l.Lng.float(), Description: l.Descricao}
	}
	if len(o.OpcoesLista) > 0 {
		list := &models.InteractiveList{Description: o.Resposta, ButtonText: "Escolha uma opção", Replies: o.RespostasLista}
		for _, s := range o.OpcoesLista {
			sec := models.ListSection{Title: s.Title}
			for _, r := range s.Rows {
				sec.Rows = append(sec.Rows, models.ListRow{RowID: r.RowID, Title: r.Title, Description: r.Description})
			}
			list.Sections = append(list.Sections, sec)
		}
		opt.InteractiveList = list
	}
	for _, b := range o.OpcoesBotoes {
		label := firstNonEmpty(b.Label, b.Texto)
		opt.Buttons = append(opt.Buttons, models.Button{Label: label, Value: firstNonEmpty(b.Value, b.Valor, label)})
	}
	return opt
}

var legacyRecurrence = map[string]models.Recurrence{
	"":        models.RecurrenceNone,
	"unica":   models.RecurrenceNone,
	"hora":    models.RecurrenceHourly,
	"diaria":  models.RecurrenceDaily,
	"semanal": models.RecurrenceWeekly,
	"mensal":  models.RecurrenceMonthly,
}

func legacyScheduledToModel(i int, m legacyScheduled) models.ScheduledMessage {
	id := string(m.ID)
	if id == "" {
		id = fmt.Sprintf("legacy-schedule-%d", i+1)
	}
	status := models.StatusPending
	if m.Status == "enviada" {
		status = models.StatusSent
	}
	rec, ok := legacyRecurrence[m.Recorrencia]
	if !ok {
		rec = models.RecurrenceNone
	}
	return models.ScheduledMessage{
		ID:         id,
		Name:       m.Nome,
		Recipient:  strings.TrimSuffix(string(m.Telefone), "@c.us"),
		SendAt:     parseLegacyTime(m.Datahora),
		Recurrence: rec,
		Status:     status,
		Content: models.Content{
			ResponseMode: legacyMode(m.TipoResposta),
			TextBody:     m.Mensagem,
			Media:        models.MediaRefs{Image: m.Imagem, GIF: m.Gif, PDF: m.Pdf, Audio: m.Audio, Sticker: m.Sticker},
		},
	}
}

// parseLegacyTime reads the datetime-local values ("2006-01-02T15:04") the
// admin form produced, in the server's local zone.
func parseLegacyTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
