package ports

// Printer emite el progreso legible por etapas. El indicador es puramente
// informativo: nunca participa en la corrección de la orquestación ni puede
// bloquear el flujo principal.
type Printer interface {
	// Println escribe una línea terminada.
	Println(txt string)

	// Stage anuncia el comienzo de una etapa y arranca el indicador
	// periódico asociado.
	Stage(txt string)

	// Success cierra la etapa en curso con su marcador de éxito.
	Success()

	// Failure cierra la etapa en curso con su marcador de fallo.
	Failure()
}
