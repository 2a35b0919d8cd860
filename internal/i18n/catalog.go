// Package i18n holds the message catalog for tracker log entries and the
// console page. English strings double as catalog keys.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Tracker log messages.
const (
	MsgStart          = "Starting request to the FLUX API"
	MsgPrompt         = "Prompt: %s"
	MsgPayload        = "Prepared payload: %s"
	MsgSubmitting     = "Submitting request..."
	MsgSubmitted      = "Request accepted. Submit response: %s"
	MsgSubmitFailed   = "Error submitting request: %v"
	MsgSyncResult     = "Received result in synchronous mode"
	MsgPollingStart   = "Polling %s (every %v, at most %d attempts)"
	MsgPollAttempt    = "Poll attempt %d/%d"
	MsgPollError      = "Poll error: %v"
	MsgPollNotFound   = "Task not found or not started yet. Retrying..."
	MsgPollResponse   = "Poll response: %s"
	MsgStatus         = "Current status: %s. Retrying in %v..."
	MsgUnexpected     = "Unexpected status: %s. Retrying in %v..."
	MsgDone           = "Processing completed successfully!"
	MsgRemoteFailed   = "Processing failed: %s"
	MsgTimeout        = "Maximum number of polling attempts reached."
	MsgMalformed      = "Unreadable response: %v"
	MsgUnknownFailure = "unknown error"
)

// Console page labels.
const (
	LabelTitle      = "FLUX Kontext studio"
	LabelInput      = "Input"
	LabelResult     = "Result"
	LabelPrompt     = "Prompt"
	LabelImage      = "Input image"
	LabelSeed       = "Seed"
	LabelAspect     = "Aspect ratio"
	LabelFormat     = "Output format"
	LabelUpsampling = "Prompt upsampling"
	LabelSafety     = "Safety tolerance"
	LabelSync       = "Synchronous mode"
	LabelGenerate   = "Generate"
	LabelReset      = "Reset"
	LabelLogs       = "Logs"
	LabelRunning    = "Generating..."
	LabelIdle       = "Submit a prompt to start."
	LabelStatus     = "Status"
	LabelError      = "Error"
	LabelOpenImage  = "Open image"
	LabelRandom     = "random"
)

var portuguese = map[string]string{
	MsgStart:          "Iniciando requisição para a API FLUX",
	MsgPrompt:         "Prompt: %s",
	MsgPayload:        "Preparando payload: %s",
	MsgSubmitting:     "Enviando requisição para a API...",
	MsgSubmitted:      "Requisição enviada com sucesso! Resposta da API: %s",
	MsgSubmitFailed:   "Erro ao enviar requisição: %v",
	MsgSyncResult:     "Recebido resultado em modo síncrono",
	MsgPollingStart:   "Iniciando polling para %s (a cada %v, no máximo %d tentativas)",
	MsgPollAttempt:    "Tentativa de polling %d/%d",
	MsgPollError:      "Erro no polling: %v",
	MsgPollNotFound:   "Tarefa não encontrada ou ainda não iniciada na API. Tentando novamente...",
	MsgPollResponse:   "Resposta do polling: %s",
	MsgStatus:         "Status atual: %s. Tentando novamente em %v...",
	MsgUnexpected:     "Status inesperado: %s. Tentando novamente em %v...",
	MsgDone:           "Processamento concluído com sucesso!",
	MsgRemoteFailed:   "Processamento falhou: %s",
	MsgTimeout:        "Número máximo de tentativas de polling atingido.",
	MsgMalformed:      "Resposta ilegível: %v",
	MsgUnknownFailure: "Erro desconhecido",

	LabelTitle:      "Estúdio FLUX Kontext",
	LabelInput:      "Entrada",
	LabelResult:     "Resultado",
	LabelPrompt:     "Prompt",
	LabelImage:      "Imagem de entrada",
	LabelSeed:       "Seed",
	LabelAspect:     "Proporção",
	LabelFormat:     "Formato de saída",
	LabelUpsampling: "Aprimorar prompt",
	LabelSafety:     "Tolerância de segurança",
	LabelSync:       "Modo síncrono",
	LabelGenerate:   "Gerar",
	LabelReset:      "Limpar",
	LabelLogs:       "Logs",
	LabelRunning:    "Gerando...",
	LabelIdle:       "Envie um prompt para começar.",
	LabelStatus:     "Status",
	LabelError:      "Erro",
	LabelOpenImage:  "Abrir imagem",
	LabelRandom:     "aleatório",
}

// Supported lists the locales with a translation, default first.
var Supported = []language.Tag{language.English, language.BrazilianPortuguese}

var (
	matcher = language.NewMatcher(Supported)
	cat     = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range portuguese {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.BrazilianPortuguese, key, text)
	}
	return b
}

// Match picks the best supported locale for the given preferences. Each
// preference may be a single tag or an Accept-Language header value; empty
// and unparsable values are skipped.
func Match(prefs ...string) language.Tag {
	var tags []language.Tag
	for _, pref := range prefs {
		pref = strings.TrimSpace(pref)
		if pref == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(pref)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return Supported[0]
	}
	_, idx, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return Supported[0]
	}
	return Supported[idx]
}

// Printer returns a printer bound to the catalog for tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(cat))
}
