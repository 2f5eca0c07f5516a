package model

// ResumeProfile 简历资料，整个投递过程中只读
type ResumeProfile struct {
	PersonalInformation PersonalInformation `yaml:"personal_information" json:"personal_information"`
	SalaryExpectations  SalaryExpectations  `yaml:"salary_expectations" json:"salary_expectations"`
	Availability        Availability        `yaml:"availability" json:"availability"`
}

// PersonalInformation 个人信息
type PersonalInformation struct {
	Name        string `yaml:"name" json:"name"`
	Surname     string `yaml:"surname" json:"surname"`
	DateOfBirth string `yaml:"date_of_birth" json:"date_of_birth"`
	Country     string `yaml:"country" json:"country"`
	City        string `yaml:"city" json:"city"`
	Address     string `yaml:"address" json:"address"`
	ZipCode     string `yaml:"zip_code" json:"zip_code"`
	PhonePrefix string `yaml:"phone_prefix" json:"phone_prefix"`
	Phone       string `yaml:"phone" json:"phone"`
	Email       string `yaml:"email" json:"email"`
	Github      string `yaml:"github" json:"github"`
	Linkedin    string `yaml:"linkedin" json:"linkedin"`
}

// SalaryExpectations 期望薪资，格式如 "50000 - 60000"
type SalaryExpectations struct {
	SalaryRangeUSD string `yaml:"salary_range_usd" json:"salary_range_usd"`
}

// Availability 到岗时间
type Availability struct {
	NoticePeriod string `yaml:"notice_period" json:"notice_period"`
}

// FullPhone 区号与号码拼接
func (p PersonalInformation) FullPhone() string {
	return p.PhonePrefix + p.Phone
}
