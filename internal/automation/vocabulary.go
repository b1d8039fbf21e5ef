package automation

import (
	"fmt"

	"whatsapp-autoresponder/internal/textnorm"
)

// Fixed replies sent by the engine itself.
const (
	DefaultWelcome  = "👋 Olá! Seja muito bem-vindo ao nosso atendimento. Como posso te ajudar hoje?"
	ReactivatedText = "🤖 Bot reativado! Como posso ajudar?"
	ApologyText     = "❌ Ocorreu um erro ao processar sua mensagem."

	menuHeader = "📋 *Confira as opções a seguir:*"
	menuFooter = "Digite o *nome* ou *número* da opção."

	confirmedText = "Você confirmou a ação! ✅"
	cancelledText = "Ação cancelada! ❌"
	deferredText  = "Ok, você pode decidir depois! ⏳"

	voteYesText = "✅ Seu voto em *Sim* foi registrado! Obrigado pela confiança."
	voteNoText  = "✅ Seu voto em *Não* foi registrado! Se quiser compartilhar o motivo, estamos à disposição para ouvir."
)

// ResetKeyword lifts a contact pause, like a greeting does.
const ResetKeyword = "0"

var greetingPhrases = []string{
	"bom dia", "boa tarde", "boa noite", "boa madrugada", "olá", "ola", "oi", "oiê", "oii", "oiii",
	"eae", "e aí", "e ai", "e aí?", "e ai?", "e aee", "e aeee", "e aew", "e aeww", "e aewww",
	"e aí, beleza?", "e ai beleza", "e aí beleza", "e ai beleza?", "e aí beleza?",
	"e ai blz", "e aí blz", "e ai blz?", "e aí blz?",
	"fala", "salve", "opa", "saudações", "saudacoes",
	"hello", "hi", "hey", "hola", "yo", "yoo", "yo!", "hey there", "hi there", "greetings", "aloha", "sup", "sup?",
	"tudo bem", "tudo bom", "tudo bem?", "tudo bom?", "tudo certo", "tudo ok",
	"como vai", "como está", "como estas", "como está?", "como estas?",
	"oi bot", "olá bot", "ola bot", "👋",
}

var greetings = func() map[string]struct{} {
	m := make(map[string]struct{}, len(greetingPhrases))
	for _, g := range greetingPhrases {
		m[textnorm.Normalize(g)] = struct{}{}
	}
	return m
}()

// IsGreeting reports whether the normalized text is one of the greeting
// phrases that open the menu.
func IsGreeting(normalized string) bool {
	_, ok := greetings[normalized]
	return ok
}

// Vote is a yes/no answer to the built-in poll.
type Vote int

const (
	NoVote Vote = iota
	VoteYes
	VoteNo
)

// plainVote reads the short poll answers typed as free text.
func plainVote(lowered string) Vote {
	switch lowered {
	case "s", "sim":
		return VoteYes
	case "n", "não", "nao":
		return VoteNo
	}
	return NoVote
}

// structuredFallback answers a selection id that no list reply covered.
func structuredFallback(id string) (string, Vote, bool) {
	switch id {
	case "sim", "yes", "option_yes", "option_sim":
		return confirmedText, VoteYes, true
	case "nao", "não", "no", "option_no", "option_nao":
		return cancelledText, VoteNo, true
	case "talvez", "maybe", "option_maybe", "option_talvez":
		return deferredText, NoVote, true
	}
	return "", NoVote, false
}

// Captions for the document-level media keywords.
var globalMediaCaptions = map[string]string{
	"pdf":    "🛍️ Confira nosso catálogo de produtos e soluções digitais!",
	"audio":  "🎵 Ouça nossa música tema!",
	"gif":    "Confira nosso gif!",
	"imagem": "Confira nossa imagem!",
}

// HandoffText is the notice sent when a contact asks for a human attendant.
func HandoffText(minutes int) string {
	return "💬 *Falar com Atendente*\n\nVocê será encaminhado para atendimento humano em instantes...\n" +
		fmt.Sprintf("(O bot ficará pausado por %s ou até você digitar uma saudação ou 0)", minutesPT(minutes))
}

func minutesPT(minutes int) string {
	switch {
	case minutes == 60:
		return "1 hora"
	case minutes > 60 && minutes%60 == 0:
		return fmt.Sprintf("%d horas", minutes/60)
	case minutes == 1:
		return "1 minuto"
	}
	return fmt.Sprintf("%d minutos", minutes)
}
