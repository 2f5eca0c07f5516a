package locators

/**
 * StepStone 网页元素定位器
 */

const STEPSTONE_HOME_URL = "https://www.stepstone.de/"
const STEPSTONE_SEARCH_URL = "https://www.stepstone.de/jobs"

// 登录流程
const STEPSTONE_SIGN_IN_MENU = "[data-testid='menu-item-sign-in-menu']"
const STEPSTONE_SIGN_IN = "[data-testid='sign-in']"
const STEPSTONE_LOGIN_OVERLAY = ".lpca-login-registration-components-1djedqi"
const STEPSTONE_OVERLAY_CLOSE = "button.close"
const STEPSTONE_EMAIL_INPUT = "[data-testid='email-input']"
const STEPSTONE_PASSWORD_INPUT = "[data-testid='password-input']"
const STEPSTONE_LOGIN_SUBMIT = "[data-testid='login-submit-btn']"
const STEPSTONE_LOGIN_INDICATOR = "//span[@data-genesis-element='TEXT']"

// Cookie 弹窗
const STEPSTONE_COOKIE_ACCEPT = "#ccmgt_explicit_accept"

/**
 * 搜索结果页
 */
const STEPSTONE_JOB_LIST = ".res-1p8f8en"
const STEPSTONE_JOB_TITLE = ".res-nehv70"
const STEPSTONE_JOB_LINK = "a"
const STEPSTONE_EASY_APPLY_BADGE = ".//span[contains(text(), 'Easy Apply')]"

// 职位详情页
const STEPSTONE_APPLY_BUTTON = "[data-testid='harmonised-apply-button']"
const STEPSTONE_APPLIED_BUTTON_TEXT = "already applied"
const STEPSTONE_SEND_APPLICATION = "[data-testid='sendApplication']"

// 申请表单
const STEPSTONE_REQUIRED_LABELS = "//label[contains(@class, 'required')]"
const STEPSTONE_SUBMIT_BUTTON = "button[type='submit'].apply-button"
const STEPSTONE_SUCCESS = "//h1[contains(text(), 'Your application has been sent')]"
