// Package catalog holds the WDespachante v2.1 price table: service fees
// (honorários), DETRAN fee codes and turnaround ranges. Lookups never
// fail; an unknown key silently falls back to the default fee so a quote
// always comes out. That is business policy, not an oversight.
package catalog

// Defaults applied when a lookup misses.
const (
	DefaultServiceFee     = 450.00
	DefaultDetranFeeCode  = "014-0"
	DefaultTurnaroundDays = "5-7"
)

// Business identity, rendered into quote templates.
const (
	BusinessName     = "WDespachante"
	BusinessAddress  = "Av. Treze de Maio, 23 - Centro, Rio de Janeiro"
	BusinessWhatsApp = "(21) 96447-4147"
	PixKey           = "19869629000109"
	InstallmentsURL  = "https://www.infinitepay.io/"
)

// serviceFees maps service category to honorário in BRL.
var serviceFees = map[string]float64{
	"transferencia":                  450.00,
	"transferencia_jurisdicao":       450.00,
	"licenciamento_simples":          150.00,
	"licenciamento_debitos":          250.00,
	"primeira_licenca":               450.00,
	"segunda_via_crv":                450.00,
	"segunda_via_atpv":               250.00,
	"comunicacao_venda":              350.00,
	"cancelamento_comunicacao_venda": 350.00,
	"baixa_veiculo":                  450.00,
	"baixa_gravame":                  450.00,
	"inclusao_gravame":               450.00,
	"mudanca_municipio":              450.00,
	"mudanca_endereco":               450.00,
	"mudanca_nome":                   450.00,
	"alteracao_caracteristicas":      450.00,
	"mudanca_cor":                    450.00,
	"retirada_gnv":                   450.00,
	"regularizacao_motor":            650.00,
	"remarcacao_chassi":              1200.00,
	"certidao_inteiro_teor":          250.00,
	"laudo_vistoria":                 450.00,
	"vistoria_movel":                 450.00,
	"vistoria_transito":              450.00,
	"troca_placa_mercosul_par":       450.00,
	"troca_placa_unitaria":           450.00,
	"veiculo_colecao":                1500.00,
	"pcd_ipi":                        600.00,
	"pcd_icms":                       600.00,
	"pcd_ipva":                       600.00,
}

// detranFees maps DETRAN fee code to value in BRL.
var detranFees = map[string]float64{
	"001-9": 209.78,
	"002-7": 209.78,
	"003-5": 209.78,
	"004-3": 209.78,
	"007-8": 93.26,
	"008-6": 209.78,
	"009-4": 209.78,
	"014-0": 209.78, // Transferência
	"016-7": 251.74,
	"018-3": 233.09, // Baixa Gravame
	"019-1": 419.55,
	"020-5": 2051.08,
	"023-0": 209.78,
	"037-0": 250.95, // Placas Mercosul
	"038-8": 125.45,
	"041-8": 76.84,
}

// turnarounds maps service category to a business-days range string.
var turnarounds = map[string]string{
	"transferencia":             "5-7",
	"licenciamento_simples":     "3-5",
	"licenciamento_debitos":     "3-5",
	"segunda_via_crv":           "5-7",
	"comunicacao_venda":         "1-2",
	"baixa_gravame":             "5-7",
	"troca_placa_mercosul_par":  "5-7",
	"mudanca_endereco":          "5-7",
	"transferencia_jurisdicao":  "7-15",
	"alteracao_caracteristicas": "5-7",
}

// Pricing is the fee breakdown for one service.
type Pricing struct {
	ServiceFee     float64
	GovernmentFee  float64
	TurnaroundDays string
}

// Quote resolves the fee breakdown for a service category and DETRAN fee
// code. Unknown keys degrade to the defaults; the call never fails.
func Quote(serviceCategory, detranFeeCode string) Pricing {
	fee, ok := serviceFees[serviceCategory]
	if !ok {
		fee = DefaultServiceFee
	}

	if detranFeeCode == "" {
		detranFeeCode = DefaultDetranFeeCode
	}
	tax, ok := detranFees[detranFeeCode]
	if !ok {
		tax = detranFees[DefaultDetranFeeCode]
	}

	days, ok := turnarounds[serviceCategory]
	if !ok {
		days = DefaultTurnaroundDays
	}

	return Pricing{ServiceFee: fee, GovernmentFee: tax, TurnaroundDays: days}
}

// ServiceFees returns a copy of the honorários table.
func ServiceFees() map[string]float64 {
	out := make(map[string]float64, len(serviceFees))
	for k, v := range serviceFees {
		out[k] = v
	}
	return out
}

// DetranFees returns a copy of the DETRAN fee table.
func DetranFees() map[string]float64 {
	out := make(map[string]float64, len(detranFees))
	for k, v := range detranFees {
		out[k] = v
	}
	return out
}

// Turnarounds returns a copy of the prazo table.
func Turnarounds() map[string]string {
	out := make(map[string]string, len(turnarounds))
	for k, v := range turnarounds {
		out[k] = v
	}
	return out
}

// ServiceCount reports how many services carry a published fee.
func ServiceCount() int {
	return len(serviceFees)
}
