package models

import "fmt"

// Module is one of the closed set of business modules a role can be granted.
type Module string

const (
	ModuleConfiguracion        Module = "CONFIGURACION"
	ModuleUsuarios             Module = "USUARIOS"
	ModuleRoles                Module = "ROLES"
	ModuleMarcacion            Module = "MARCACION"
	ModuleMovimientos          Module = "MOVIMIENTOS"
	ModuleAuditoria            Module = "AUDITORIA"
	ModuleProduccion           Module = "PRODUCCION"
	ModuleProduccionLineas     Module = "PRODUCCION_LINEAS"
	ModuleLineaUno             Module = "LINEA_UNO"
	ModuleLineaDos             Module = "LINEA_DOS"
	ModuleLineaTres            Module = "LINEA_TRES"
	ModuleLineaCuatro          Module = "LINEA_CUATRO"
	ModuleLineaCinco           Module = "LINEA_CINCO"
	ModuleLineaSeis            Module = "LINEA_SEIS"
	ModuleControlTara          Module = "CONTROL_TARA"
	ModuleControlPanza         Module = "CONTROL_PANZA"
	ModuleControlPanzaEntradas Module = "CONTROL_PANZA_ENTRADAS"
	ModuleAdministracion       Module = "ADMINISTRACION"
	ModuleAreaOperarios        Module = "AREA_OPERARIOS"
	ModuleControlLote          Module = "CONTROL_LOTE"
	ModuleEspecies             Module = "ESPECIES"
	ModuleLineasOperarios      Module = "LINEAS_OPERARIOS"
	ModulePlanificacionTurno   Module = "PLANIFICACION_TURNO"
	ModuleDetalleProduccion    Module = "DETALLE_PRODUCCION"
	ModuleControlLoteSalidas   Module = "CONTROL_LOTE_SALIDAS"
	ModuleControlMiga          Module = "CONTROL_MIGA"
	ModuleInventario           Module = "INVENTARIO"
)

var knownModules = map[Module]struct{}{
	ModuleConfiguracion: {}, ModuleUsuarios: {}, ModuleRoles: {}, ModuleMarcacion: {},
	ModuleMovimientos: {}, ModuleAuditoria: {}, ModuleProduccion: {}, ModuleProduccionLineas: {},
	ModuleLineaUno: {}, ModuleLineaDos: {}, ModuleLineaTres: {}, ModuleLineaCuatro: {},
	ModuleLineaCinco: {}, ModuleLineaSeis: {}, ModuleControlTara: {}, ModuleControlPanza: {},
	ModuleControlPanzaEntradas: {}, ModuleAdministracion: {}, ModuleAreaOperarios: {},
	ModuleControlLote: {}, ModuleEspecies: {}, ModuleLineasOperarios: {}, ModulePlanificacionTurno: {},
	ModuleDetalleProduccion: {}, ModuleControlLoteSalidas: {}, ModuleControlMiga: {}, ModuleInventario: {},
}

func ParseModule(s string) (Module, error) {
	m := Module(s)
	if _, ok := knownModules[m]; !ok {
		return "", fmt.Errorf("unknown module %q", s)
	}
	return m, nil
}

func (m *Module) UnmarshalText(text []byte) error {
	parsed, err := ParseModule(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Module) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case PermissionRead, PermissionWrite:
		return Permission(s), nil
	default:
		return "", fmt.Errorf("unknown permission %q", s)
	}
}

// ParsePermissions decodes a stored permission list. Any unrecognized value
// fails the whole list.
func ParsePermissions(values []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(values))
	for _, v := range values {
		p, err := ParsePermission(v)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
