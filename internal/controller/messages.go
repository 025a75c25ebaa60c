package controller

import (
	"errors"
	"fmt"
)

// User-facing texts. The backend speaks Spanish, so the client does too.
const (
	MsgWelcome = "¡Hola! Soy Briefly, un asistente para analizar documentos PDF. Para comenzar, carga un PDF y podré ayudarte a extraer información, resumir su contenido y responder preguntas sobre él."

	MsgUploading        = "Cargando y procesando el PDF..."
	MsgGeneratingFirst  = "Generando resumen del primer bloque... (esto puede tomar hasta 1 minuto)"
	MsgKeepInteracting  = "Puedes seguir interactuando con la aplicación mientras se genera el resumen."
	MsgPollExhausted    = `No se pudo obtener el resumen automáticamente. Escribe "obtener resumen" para intentar nuevamente.`
	MsgNextBlockHint    = `Para ver el resumen del siguiente bloque, escribe "siguiente bloque" o usa los botones de comandos`
	MsgDocumentComplete = "Procesamiento del documento completo"
	MsgUploadFailed     = "Error al cargar el PDF. Por favor intenta de nuevo."
	MsgQueryFailed      = "Error al procesar tu consulta. Por favor intenta de nuevo."
	MsgErrorPrefix      = "Error: "
	MsgNoDocumentName   = "Sin nombre"

	ToastConnection        = "Error de conexión"
	ToastBusy              = "Espera a que se complete la consulta actual"
	ToastNoFile            = "Por favor selecciona un archivo PDF"
	ToastNotPDF            = "Solo se permiten archivos PDF"
	ToastUploadInFlight    = "Ya se está cargando un PDF"
	ToastUploadOK          = "PDF cargado correctamente"
	ToastUploadError       = "Error al procesar el PDF"
	ToastQueryError        = "Error al procesar la consulta"
	ToastDocumentComplete  = "Documento procesado completamente"
	ToastNothingToExport   = "No hay conversación para descargar"
	ToastPreparingDownload = "Preparando la descarga..."
	ToastExported          = "Conversación descargada correctamente"
	ToastNothingToClear    = "No hay mensajes para limpiar"
	ToastCleared           = "Conversación limpiada correctamente"
	ToastSessionInfoError  = "Error al cargar información de sesión"
	ToastNoSession         = "No hay ninguna sesión activa"
	ToastSessionDeleted    = "Sesión eliminada"
)

// ProgressNotice is shown every few not-ready poll replies.
func ProgressNotice(attempt, max int) string {
	return fmt.Sprintf("Aún generando el resumen... (intento %d/%d)", attempt, max)
}

// Validation errors. They are rejected before any network call and leave
// the controller state unchanged.
var (
	ErrEmptyQuery      = errors.New("empty query")
	ErrBusy            = errors.New("a query or typing animation is in progress")
	ErrNoFile          = errors.New("no file selected")
	ErrNotPDF          = errors.New("only .pdf files are accepted")
	ErrUploadInFlight  = errors.New("an upload is already in progress")
	ErrNothingToExport = errors.New("conversation is empty")
	ErrNothingToClear  = errors.New("nothing to clear")
	ErrNoSession       = errors.New("no active session")
)

// Warning returns the notification text for a validation error. ok is false
// for errors that are not validation errors.
func Warning(err error) (text string, ok bool) {
	switch {
	case errors.Is(err, ErrBusy):
		return ToastBusy, true
	case errors.Is(err, ErrNoFile):
		return ToastNoFile, true
	case errors.Is(err, ErrNotPDF):
		return ToastNotPDF, true
	case errors.Is(err, ErrUploadInFlight):
		return ToastUploadInFlight, true
	case errors.Is(err, ErrNothingToExport):
		return ToastNothingToExport, true
	case errors.Is(err, ErrNothingToClear):
		return ToastNothingToClear, true
	case errors.Is(err, ErrNoSession):
		return ToastNoSession, true
	case errors.Is(err, ErrEmptyQuery):
		return "", true
	}
	return "", false
}
