package models

import "fmt"

const (
	MinLinea = 1
	MaxLinea = 6
)

var lineaWords = map[int]string{1: "uno", 2: "dos", 3: "tres", 4: "cuatro", 5: "cinco", 6: "seis"}

func ValidLinea(n int) bool {
	return n >= MinLinea && n <= MaxLinea
}

func lineaWord(linea int) string {
	if word, ok := lineaWords[linea]; ok {
		return word
	}
	return "desconocido"
}

// SalidaAuditModel is the model tag audit rows use for exit records of a
// line, e.g. "reg_linea_dos_salida".
func SalidaAuditModel(linea int) string {
	return fmt.Sprintf("reg_linea_%s_salida", lineaWord(linea))
}

func EntradaAuditModel(linea int) string {
	return fmt.Sprintf("reg_linea_%s_entrada", lineaWord(linea))
}

const (
	AuditModelMiga    = "control_miga"
	AuditModelTara    = "control_tara"
	AuditModelUsuario = "usuarios"
)
