package enums

type RedeemCampaignStatus string

const (
	RedeemCampaignActive RedeemCampaignStatus = "ACTIVE"
	RedeemCampaignPaused RedeemCampaignStatus = "PAUSED"
	RedeemCampaignEnded  RedeemCampaignStatus = "ENDED"
)

var campaignStatuses = newSet("campaign status", RedeemCampaignActive, RedeemCampaignPaused, RedeemCampaignEnded)

func (v RedeemCampaignStatus) IsValid() bool { return campaignStatuses.has(v) }

func ParseRedeemCampaignStatus(raw string) (RedeemCampaignStatus, error) {
	return campaignStatuses.parse(raw)
}

// RedeemCodeType distinguishes generated codes from admin-chosen ones.
type RedeemCodeType string

const (
	RedeemCodeRandom RedeemCodeType = "RANDOM"
	RedeemCodeCustom RedeemCodeType = "CUSTOM"
)

var codeTypes = newSet("code type", RedeemCodeRandom, RedeemCodeCustom)

func (v RedeemCodeType) IsValid() bool { return codeTypes.has(v) }
